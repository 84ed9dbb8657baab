package logquery

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
)

func newQuery(t *testing.T) (*Query, *logstore.Store) {
	t.Helper()
	store := logstore.New(t.TempDir())
	return New(store), store
}

func writeLog(t *testing.T, store *logstore.Store, project, name, content string) {
	t.Helper()
	f, err := store.OpenLog(project, name)
	if err != nil {
		t.Fatalf("OpenLog failed: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestIsErrorLine(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"TS2345: Argument of type 'string' is not assignable", true},
		{"error[E0308]: mismatched types", true},
		{"Error: connection refused", true},
		{"ERROR in ./src/main.ts", true},
		{"Build failed with 3 errors", true},
		{"warning: unused variable x", true},
		{"WARNING: deprecated API", true},
		{"npm ERR! missing script: dev", true},
		{"TypeError: undefined is not a function", true},
		{"panic: runtime error: index out of range", true},
		{"server listening on :3000", false},
		{"compiled successfully in 1.2s", false},
		{"", false},
		{"GET /api/users 200 12ms", false},
	}
	for _, tc := range cases {
		if got := IsErrorLine(tc.line); got != tc.want {
			t.Errorf("IsErrorLine(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestErrors_LineNumbers(t *testing.T) {
	q, store := newQuery(t)

	// Build a log whose line 42 is a TypeScript error
	var b strings.Builder
	for i := 1; i <= 50; i++ {
		if i == 42 {
			b.WriteString("TS2345: Argument of type 'number' is not assignable to parameter of type 'string'\n")
		} else {
			b.WriteString(fmt.Sprintf("build step %d ok\n", i))
		}
	}
	writeLog(t, store, "shop", "frontend", b.String())

	results, err := q.Errors("shop", "frontend")
	if err != nil {
		t.Fatalf("Errors failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	found := false
	for _, m := range results[0].Matches {
		if m.Line == 42 && strings.HasPrefix(m.Text, "TS2345: Argument of type") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected TS2345 match on line 42, got %+v", results[0].Matches)
	}
}

func TestErrors_AllLogsAndCap(t *testing.T) {
	q, store := newQuery(t)

	// One log with more matches than the cap
	var b strings.Builder
	for i := 0; i < 150; i++ {
		b.WriteString(fmt.Sprintf("error: failure %d\n", i))
	}
	writeLog(t, store, "shop", "api", b.String())
	writeLog(t, store, "shop", "worker", "all quiet\n")

	results, err := q.Errors("shop", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d logs, want 2", len(results))
	}

	byName := map[string][]Match{}
	for _, r := range results {
		byName[r.Name] = r.Matches
	}

	api := byName["api"]
	if len(api) != 100 {
		t.Errorf("api matches = %d, want 100 (capped)", len(api))
	}
	// The cap keeps the most recent matches
	if api[len(api)-1].Line != 150 {
		t.Errorf("last match line = %d, want 150", api[len(api)-1].Line)
	}
	if len(byName["worker"]) != 0 {
		t.Errorf("worker matches = %d, want 0", len(byName["worker"]))
	}
}

func TestSummary(t *testing.T) {
	q, store := newQuery(t)

	writeLog(t, store, "shop", "frontend",
		"=== PROCESS: shop/frontend ===\n"+
			"vite dev server starting\n"+
			"TS2345: Argument of type 'x' is not assignable\n"+
			"ready in 450ms\n")
	writeLog(t, store, "shop", "api", "listening on :8080\n")

	summaries, err := q.Summary("shop")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}

	for _, s := range summaries {
		switch s.Name {
		case "frontend":
			if s.ErrorCount < 1 {
				t.Errorf("frontend ErrorCount = %d, want >= 1", s.ErrorCount)
			}
			if s.LastLine != "ready in 450ms" {
				t.Errorf("frontend LastLine = %q, want the last non-separator line", s.LastLine)
			}
		case "api":
			if s.ErrorCount != 0 {
				t.Errorf("api ErrorCount = %d, want 0", s.ErrorCount)
			}
			if s.LastLine != "listening on :8080" {
				t.Errorf("api LastLine = %q", s.LastLine)
			}
		}
	}
}

func TestSummary_Idempotent(t *testing.T) {
	q, store := newQuery(t)

	writeLog(t, store, "shop", "api", "error: boom\nok line\n")

	first, err := q.Summary("shop")
	if err != nil {
		t.Fatal(err)
	}
	second, err := q.Summary("shop")
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("summary lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ErrorCount != second[i].ErrorCount || first[i].LastLine != second[i].LastLine {
			t.Errorf("summary not idempotent: %+v vs %+v", first[i], second[i])
		}
	}
}

func TestTail(t *testing.T) {
	q, store := newQuery(t)

	var b strings.Builder
	for i := 1; i <= 100; i++ {
		b.WriteString(fmt.Sprintf("line %d\n", i))
	}
	writeLog(t, store, "shop", "api", b.String())

	lines, err := q.Tail("shop", "api", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 10 {
		t.Fatalf("Tail = %d lines, want 10", len(lines))
	}
	if lines[0] != "line 91" || lines[9] != "line 100" {
		t.Errorf("Tail window = [%s .. %s], want [line 91 .. line 100]", lines[0], lines[9])
	}

	// Default of 50 lines when n <= 0
	lines, err = q.Tail("shop", "api", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != DefaultTailLines {
		t.Errorf("default Tail = %d lines, want %d", len(lines), DefaultTailLines)
	}
}

func TestTail_UnknownProcess(t *testing.T) {
	q, _ := newQuery(t)
	if _, err := q.Tail("shop", "ghost", 10); err == nil {
		t.Error("Tail of unknown process should fail")
	}
}

func TestRecent_WindowAndLineNumbers(t *testing.T) {
	q, store := newQuery(t)

	// Old error outside the window, fresh error inside it
	var b strings.Builder
	b.WriteString("error: ancient failure\n")
	for i := 0; i < 200; i++ {
		b.WriteString("filler\n")
	}
	b.WriteString("error: fresh failure\n")
	writeLog(t, store, "shop", "api", b.String())

	results, err := q.Recent("shop", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	matches := results[0].Matches
	if len(matches) != 1 {
		t.Fatalf("matches = %+v, want only the fresh failure", matches)
	}
	// File has 202 lines; the fresh error is the last one
	if matches[0].Line != 202 {
		t.Errorf("match line = %d, want 202", matches[0].Line)
	}
}

func TestWatch_DeltaAndCursor(t *testing.T) {
	q, store := newQuery(t)

	writeLog(t, store, "shop", "api", "one\ntwo\n")

	// First watch sees everything
	fresh, err := q.Watch("shop", "api")
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 2 {
		t.Fatalf("first Watch = %d lines, want 2", len(fresh))
	}

	// No growth, nothing new
	fresh, err = q.Watch("shop", "api")
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 0 {
		t.Errorf("second Watch = %d lines, want 0", len(fresh))
	}

	// Append and watch again
	writeLog(t, store, "shop", "api", "three\n")
	fresh, err = q.Watch("shop", "api")
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || fresh[0] != "three" {
		t.Errorf("third Watch = %v, want [three]", fresh)
	}
}

func TestWatch_TruncatedOutOfBand(t *testing.T) {
	q, store := newQuery(t)

	writeLog(t, store, "shop", "api", "a\nb\nc\nd\n")
	if _, err := q.Watch("shop", "api"); err != nil {
		t.Fatal(err)
	}

	// Truncate behind the cursor's back
	if err := os.Truncate(store.LogPath("shop", "api"), 0); err != nil {
		t.Fatal(err)
	}
	writeLog(t, store, "shop", "api", "fresh\n")

	fresh, err := q.Watch("shop", "api")
	if err != nil {
		t.Fatal(err)
	}
	// Cursor resyncs without replaying; nothing is reported for this call
	if len(fresh) != 0 {
		t.Errorf("Watch after external truncate = %v, want none", fresh)
	}

	writeLog(t, store, "shop", "api", "newer\n")
	fresh, err = q.Watch("shop", "api")
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || fresh[0] != "newer" {
		t.Errorf("Watch after resync = %v, want [newer]", fresh)
	}
}

func TestClear(t *testing.T) {
	q, store := newQuery(t)

	writeLog(t, store, "shop", "api", "error: boom\n")
	if _, err := q.Watch("shop", "api"); err != nil {
		t.Fatal(err)
	}

	if err := q.Clear("shop", "api"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	lines, err := q.Tail("shop", "api", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Errorf("log after Clear = %v, want empty", lines)
	}
	if n, _ := store.ReadMarker("shop", "api"); n != 0 {
		t.Errorf("cursor after Clear = %d, want 0", n)
	}
}

func TestClear_UnknownProcess(t *testing.T) {
	q, _ := newQuery(t)
	if err := q.Clear("shop", "ghost"); err == nil {
		t.Error("Clear of unknown process should fail")
	}
}
