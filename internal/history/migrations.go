package history

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    triggered_by TEXT NOT NULL DEFAULT 'manual',
    input TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    interrupted BOOLEAN DEFAULT FALSE,
    total INTEGER DEFAULT 0,
    completed INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    interrupted_jobs INTEGER DEFAULT 0,
    cleanup_failures INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS job_results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    job_id INTEGER NOT NULL,
    priority TEXT,
    title TEXT,
    status TEXT NOT NULL,
    pr_number INTEGER,
    attempts INTEGER DEFAULT 0,
    elapsed_ms INTEGER DEFAULT 0,
    detail TEXT,
    session_id TEXT,
    PRIMARY KEY (run_id, job_id)
);

CREATE INDEX IF NOT EXISTS idx_job_results_job_id ON job_results(job_id);
`
