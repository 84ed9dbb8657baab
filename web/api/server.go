// Package api serves the read side of the orchestrator over HTTP: delegation
// status, process log summaries, a delegation endpoint, SSE change events and
// a websocket log tail.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/delegate"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/history"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logquery"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/observer"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/statusstore"
)

// stuckThreshold is how long a running delegation may go before /api/status
// reports it as stuck.
const stuckThreshold = 30 * time.Minute

// Options configures the status server. History may be nil when the history
// database is unavailable; the history endpoint then answers 503.
type Options struct {
	Addr      string
	Logs      *logstore.Store
	Query     *logquery.Query
	Status    *statusstore.Store
	History   *history.Store
	DefaultAI string
	Dispatch  func(delegate.Request) (delegate.Handle, error)
}

// Server is the HTTP status server.
type Server struct {
	opts     Options
	observer *observer.Observer
	watcher  *observer.LogWatcher
	mux      *http.ServeMux
	sseHub   *SSEHub
	upgrader websocket.Upgrader

	subsMu sync.Mutex
	subs   map[*logSub]bool
}

// NewServer creates an API server over the given stores.
func NewServer(opts Options) (*Server, error) {
	s := &Server{
		opts:     opts,
		observer: observer.New(opts.Status, stuckThreshold),
		mux:      http.NewServeMux(),
		sseHub:   NewSSEHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*logSub]bool),
	}

	watcher, err := observer.NewLogWatcher(opts.Logs, s.onLogChange)
	if err != nil {
		return nil, fmt.Errorf("creating log watcher: %w", err)
	}
	s.watcher = watcher

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/tasks", s.listTasksHandler())
	s.mux.HandleFunc("/api/tasks/", s.getTaskHandler())
	s.mux.HandleFunc("/api/delegate", s.delegateHandler())
	s.mux.HandleFunc("/api/projects/", s.projectHandler())
	s.mux.HandleFunc("/api/history", s.historyHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/ws/logs", s.wsLogsHandler())
}

// Start runs the server until the listener fails.
func (s *Server) Start() error {
	go s.sseHub.Run()
	s.watcher.Start(context.Background())
	defer s.watcher.Stop()
	return http.ListenAndServe(s.opts.Addr, s.mux)
}

// Broadcast sends an event to all SSE clients.
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

// onLogChange fans a debounced log write out to SSE clients and any
// websocket tails on the affected processes.
func (s *Server) onLogChange(project string, names []string) {
	s.Broadcast(SSEEvent{Type: "logs_changed", Data: map[string]interface{}{
		"project":   project,
		"processes": names,
	}})
	s.notifyLogSubs(project, names)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
