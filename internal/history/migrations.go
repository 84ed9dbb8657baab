package history

const schema = `
CREATE TABLE IF NOT EXISTS delegations (
    task_id TEXT PRIMARY KEY,
    ai_name TEXT NOT NULL,
    project TEXT NOT NULL,
    task_description TEXT,
    status TEXT NOT NULL,
    branch TEXT,
    started_at TIMESTAMP,
    completed_at TIMESTAMP,
    exit_code INTEGER,
    commits_made INTEGER DEFAULT 0,
    files_changed INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_delegations_project ON delegations(project);
CREATE INDEX IF NOT EXISTS idx_delegations_status ON delegations(status);

CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    project TEXT NOT NULL,
    name TEXT NOT NULL,
    command TEXT,
    started_at TIMESTAMP,
    ended_at TIMESTAMP,
    exit_code INTEGER,
    restarts INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project, name);
CREATE INDEX IF NOT EXISTS idx_sessions_run_id ON sessions(run_id);
`
