package sqlite

// Schema contains the SQL statements to create the database schema.
// Every statement is idempotent. JSON-valued columns are TEXT; the content
// fingerprint is a JSON array of 64 floats compared in Go.
const Schema = `
CREATE TABLE IF NOT EXISTS persons (
    id TEXT PRIMARY KEY,
    identity_key TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    aliases TEXT NOT NULL DEFAULT '[]',
    description TEXT,
    occupations TEXT NOT NULL DEFAULT '[]',
    organizations TEXT NOT NULL DEFAULT '[]',
    links TEXT NOT NULL DEFAULT '[]',
    avatar_url TEXT,
    gender TEXT,
    country TEXT,
    birth_year INTEGER,
    status TEXT NOT NULL DEFAULT 'pending',
    last_run_id TEXT,
    completeness INTEGER NOT NULL DEFAULT 0,
    completeness_breakdown TEXT,
    influence REAL NOT NULL DEFAULT 0,
    view_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_persons_status ON persons(status);

CREATE TABLE IF NOT EXISTS content_items (
    id TEXT PRIMARY KEY,
    person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    url TEXT,
    content_hash TEXT NOT NULL,
    title TEXT,
    body TEXT,
    published_at TIMESTAMP,
    fetch_status TEXT NOT NULL DEFAULT 'fetched',
    metadata TEXT,
    fingerprint TEXT,
    run_id TEXT,
    fetched_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (person_id, content_hash)
);
CREATE INDEX IF NOT EXISTS idx_content_person_run ON content_items(person_id, run_id);

CREATE TABLE IF NOT EXISTS organizations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL DEFAULT 'other',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS career_events (
    id TEXT PRIMARY KEY,
    person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
    organization_id TEXT NOT NULL REFERENCES organizations(id),
    organization TEXT NOT NULL,
    role TEXT NOT NULL,
    role_key TEXT NOT NULL,
    start_period TEXT NOT NULL DEFAULT '',
    start_date TIMESTAMP,
    end_date TIMESTAMP,
    start_unknown INTEGER NOT NULL DEFAULT 0,
    end_unknown INTEGER NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0,
    source TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (person_id, organization_id, role_key, start_period)
);

CREATE TABLE IF NOT EXISTS courses (
    id TEXT PRIMARY KEY,
    person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    title_key TEXT NOT NULL,
    institution TEXT,
    year INTEGER NOT NULL DEFAULT 0,
    url TEXT,
    source TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (person_id, title_key)
);

CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_runs (
    id TEXT PRIMARY KEY,
    person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
    run_trigger TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    status TEXT NOT NULL,
    stages TEXT,
    error TEXT,
    counts TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_person ON enrichment_runs(person_id, started_at);

CREATE TABLE IF NOT EXISTS resolution_sessions (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    outcome TEXT NOT NULL,
    person_id TEXT,
    candidate_count INTEGER NOT NULL DEFAULT 0,
    diagnostic TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON resolution_sessions(outcome);
`
