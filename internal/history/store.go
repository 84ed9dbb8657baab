// Package history keeps a SQLite index of finished delegations and
// supervise sessions. The status files remain the source of truth for live
// polling; the database only feeds the history command and the dashboard.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed delegation and session history
type Store struct {
	db *sql.DB
}

// New opens the history database at the given path, creating it and its
// parent directory if needed.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Detached runners and the supervisor write concurrently
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Delegation is one recorded delegation row.
type Delegation struct {
	TaskID          string
	AIName          string
	Project         string
	TaskDescription string
	Status          domain.TaskStatus
	Branch          string
	StartedAt       time.Time
	CompletedAt     *time.Time
	ExitCode        *int
	CommitsMade     int
	FilesChanged    int
}

// RecordDelegation inserts or updates the row for a task. Runners call it
// once per terminal state; re-recording the same task is an update, not a
// duplicate.
func (s *Store) RecordDelegation(task *domain.DelegationTask) error {
	var completedAt interface{}
	if task.CompletedAt != nil {
		completedAt = *task.CompletedAt
	}
	var exitCode interface{}
	if task.ExitCode != nil {
		exitCode = *task.ExitCode
	}

	_, err := s.db.Exec(`
		INSERT INTO delegations (task_id, ai_name, project, task_description, status, branch, started_at, completed_at, exit_code, commits_made, files_changed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			branch = excluded.branch,
			completed_at = excluded.completed_at,
			exit_code = excluded.exit_code,
			commits_made = excluded.commits_made,
			files_changed = excluded.files_changed
	`,
		task.TaskID,
		task.AIName,
		filepath.Base(task.ProjectPath),
		task.TaskDescription,
		string(task.Status),
		task.BranchName,
		task.StartedAt,
		completedAt,
		exitCode,
		task.CommitsMade,
		task.FilesChanged,
	)
	return err
}

// ListOptions specifies filters for listing delegations
type ListOptions struct {
	Project string
	Status  domain.TaskStatus
	Limit   int
}

// Delegations returns recorded delegations matching the given options,
// newest first.
func (s *Store) Delegations(opts ListOptions) ([]*Delegation, error) {
	query := `SELECT task_id, ai_name, project, task_description, status, branch, started_at, completed_at, exit_code, commits_made, files_changed FROM delegations WHERE 1=1`
	var args []interface{}

	if opts.Project != "" {
		query += " AND project = ?"
		args = append(args, opts.Project)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var delegations []*Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		delegations = append(delegations, d)
	}

	return delegations, rows.Err()
}

// RecordSession inserts one finished supervise session.
func (s *Store) RecordSession(sess domain.SessionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (run_id, project, name, command, started_at, ended_at, exit_code, restarts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sess.RunID,
		sess.Project,
		sess.Name,
		sess.Command,
		sess.StartedAt,
		sess.EndedAt,
		sess.ExitCode,
		sess.Restarts,
	)
	return err
}

// Sessions returns recorded supervise sessions, newest first, optionally
// filtered by project.
func (s *Store) Sessions(project string, limit int) ([]domain.SessionRecord, error) {
	query := `SELECT run_id, project, name, command, started_at, ended_at, exit_code, restarts FROM sessions WHERE 1=1`
	var args []interface{}

	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.SessionRecord
	for rows.Next() {
		var sess domain.SessionRecord
		var command sql.NullString
		if err := rows.Scan(&sess.RunID, &sess.Project, &sess.Name, &command, &sess.StartedAt, &sess.EndedAt, &sess.ExitCode, &sess.Restarts); err != nil {
			return nil, err
		}
		if command.Valid {
			sess.Command = command.String
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

func scanDelegation(rows *sql.Rows) (*Delegation, error) {
	var d Delegation
	var status string
	var description, branch sql.NullString
	var completedAt sql.NullTime
	var exitCode sql.NullInt64

	err := rows.Scan(&d.TaskID, &d.AIName, &d.Project, &description, &status, &branch, &d.StartedAt, &completedAt, &exitCode, &d.CommitsMade, &d.FilesChanged)
	if err != nil {
		return nil, err
	}

	d.Status = domain.TaskStatus(status)
	if description.Valid {
		d.TaskDescription = description.String
	}
	if branch.Valid {
		d.Branch = branch.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		d.CompletedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		d.ExitCode = &code
	}

	return &d, nil
}
