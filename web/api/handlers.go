package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/delegate"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/history"
)

// StatusResponse is the aggregate delegation view returned by /api/status.
type StatusResponse struct {
	Running      int      `json:"running"`
	Completed    int      `json:"completed"`
	Failed       int      `json:"failed"`
	AuthRequired int      `json:"auth_required"`
	BranchFailed int      `json:"branch_failed"`
	Stuck        []string `json:"stuck,omitempty"`
	AvgDuration  string   `json:"avg_duration,omitempty"`
}

// DelegateRequest is the POST /api/delegate body. AIName may be omitted;
// the server's configured default tool is used then.
type DelegateRequest struct {
	AIName          string `json:"ai_name,omitempty"`
	TaskDescription string `json:"task_description"`
	ProjectPath     string `json:"project_path"`
	Branch          bool   `json:"branch,omitempty"`
	BranchName      string `json:"branch_name,omitempty"`
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		metrics, err := s.observer.Snapshot()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := StatusResponse{
			Running:      metrics.Running,
			Completed:    metrics.Completed,
			Failed:       metrics.Failed,
			AuthRequired: metrics.AuthRequired,
			BranchFailed: metrics.BranchFailed,
			Stuck:        metrics.Stuck,
		}
		if metrics.AvgDuration > 0 {
			resp.AvgDuration = metrics.AvgDuration.Round(time.Second).String()
		}

		writeJSON(w, resp)
	}
}

func (s *Server) listTasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		tasks, err := s.opts.Status.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if want := r.URL.Query().Get("status"); want != "" {
			filtered := tasks[:0]
			for _, t := range tasks {
				if t.Status == domain.TaskStatus(want) {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}

		if tasks == nil {
			tasks = []*domain.DelegationTask{}
		}
		writeJSON(w, tasks)
	}
}

func (s *Server) getTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
		if taskID == "" {
			writeError(w, http.StatusBadRequest, "task ID required")
			return
		}

		task, err := s.opts.Status.Read(taskID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		writeJSON(w, task)
	}
}

func (s *Server) delegateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req DelegateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		if req.AIName == "" {
			req.AIName = s.opts.DefaultAI
		}

		handle, err := s.opts.Dispatch(delegate.Request{
			AIName:          req.AIName,
			TaskDescription: req.TaskDescription,
			ProjectPath:     req.ProjectPath,
			Branch:          req.Branch,
			BranchName:      req.BranchName,
		})
		if err != nil {
			// No task ID means the request never got far enough to produce
			// a record; that is the caller's fault.
			if handle.TaskID == "" {
				writeError(w, http.StatusBadRequest, err.Error())
			} else {
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}

		s.Broadcast(SSEEvent{Type: "task_update", Data: handle})

		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, handle)
	}
}

// projectHandler serves per-project log queries:
//
//	GET /api/projects/{project}/summary
//	GET /api/projects/{project}/logs/{name}?lines=N
func (s *Server) projectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api/projects/")
		parts := strings.Split(strings.Trim(path, "/"), "/")
		if len(parts) < 2 || parts[0] == "" {
			writeError(w, http.StatusBadRequest, "project and resource required")
			return
		}
		project := parts[0]

		switch parts[1] {
		case "summary":
			summaries, err := s.opts.Query.Summary(project)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if summaries == nil {
				summaries = []domain.ProcessSummary{}
			}
			writeJSON(w, summaries)

		case "logs":
			if len(parts) < 3 || parts[2] == "" {
				writeError(w, http.StatusBadRequest, "process name required")
				return
			}
			lines := 0
			if q := r.URL.Query().Get("lines"); q != "" {
				n, err := strconv.Atoi(q)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid lines parameter")
					return
				}
				lines = n
			}
			tail, err := s.opts.Query.Tail(project, parts[2], lines)
			if err != nil {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeJSON(w, map[string]interface{}{
				"project": project,
				"name":    parts[2],
				"lines":   tail,
			})

		default:
			writeError(w, http.StatusNotFound, "unknown resource "+parts[1])
		}
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if s.opts.History == nil {
			writeError(w, http.StatusServiceUnavailable, "history database not available")
			return
		}

		opts := history.ListOptions{Limit: 50}
		if q := r.URL.Query().Get("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid limit parameter")
				return
			}
			opts.Limit = n
		}
		opts.Project = r.URL.Query().Get("project")

		delegations, err := s.opts.History.Delegations(opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if delegations == nil {
			delegations = []*history.Delegation{}
		}
		writeJSON(w, delegations)
	}
}
