package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSlackNotifier_Send(t *testing.T) {
	var received SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Task delegation",
		Message: `claude finished "refactor the config loader"`,
		Type:    NotifySuccess,
		TaskID:  "claude_20260101_120000_42",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if received.Text != "Task delegation" {
		t.Errorf("Text = %q, want the title", received.Text)
	}
	if len(received.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(received.Attachments))
	}
	att := received.Attachments[0]
	if att.Color != "good" {
		t.Errorf("Color = %q, want good", att.Color)
	}
	if att.Title != "claude_20260101_120000_42" {
		t.Errorf("Attachment title = %q, want the task ID", att.Title)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	if err := notifier.Send(Notification{Title: "Test"}); err == nil {
		t.Error("Send should fail on a non-200 response")
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestUrgencyForType(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifyInfo, "low"},
		{NotifySuccess, "normal"},
		{NotifyWarning, "normal"},
		{NotifyError, "critical"},
	}

	for _, tt := range tests {
		got := UrgencyForType(tt.typ)
		if got != tt.want {
			t.Errorf("UrgencyForType(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestEscapeAppleScript(t *testing.T) {
	got := escapeAppleScript(`finished "fix \ thing"`)
	want := `finished \"fix \\ thing\"`
	if got != want {
		t.Errorf("escapeAppleScript = %q, want %q", got, want)
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(false, "").(NoopNotifier); !ok {
		t.Error("FromConfig with everything disabled should be a no-op")
	}
	if _, ok := FromConfig(true, "https://hooks.slack.example/x").(*MultiNotifier); !ok {
		t.Error("FromConfig with channels enabled should fan out")
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
