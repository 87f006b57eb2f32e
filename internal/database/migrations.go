package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS leads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'new',
    source TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lead_id INTEGER REFERENCES leads(id),
    name TEXT NOT NULL,
    stage TEXT NOT NULL DEFAULT 'new',
    stage_changed_at TEXT DEFAULT (datetime('now')),
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS schedules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deal_id INTEGER REFERENCES deals(id),
    lead_id INTEGER REFERENCES leads(id),
    kind TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    due_at TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS proposals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deal_id INTEGER NOT NULL REFERENCES deals(id),
    status TEXT NOT NULL DEFAULT 'draft',
    sent_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS next_actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    priority TEXT NOT NULL,
    score REAL NOT NULL DEFAULT 0,
    source_type TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    dedupe_key TEXT UNIQUE NOT NULL,
    created_by_rule TEXT NOT NULL,
    entity_type TEXT,
    entity_id INTEGER,
    payload_json TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'queued',
    snoozed_until TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS action_executions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    next_action_id INTEGER NOT NULL REFERENCES next_actions(id),
    action_key TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    started_at TEXT DEFAULT (datetime('now')),
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS memory_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    actor_user_id TEXT NOT NULL,
    source_type TEXT NOT NULL,
    rule_key TEXT,
    action_key TEXT,
    outcome TEXT NOT NULL,
    meta_json TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS learned_weights (
    actor_user_id TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('rule', 'action')),
    key TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0,
    stats_json TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (actor_user_id, kind, key)
);

CREATE TABLE IF NOT EXISTS memory_outbox (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    payload_json TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued',
    attempts INTEGER NOT NULL DEFAULT 0,
    next_attempt_at TEXT NOT NULL,
    last_error TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_next_actions_status ON next_actions(status);
CREATE INDEX IF NOT EXISTS idx_next_actions_scope ON next_actions(scope);
CREATE INDEX IF NOT EXISTS idx_executions_action ON action_executions(next_action_id);
CREATE INDEX IF NOT EXISTS idx_memory_events_actor ON memory_events(actor_user_id);
CREATE INDEX IF NOT EXISTS idx_outbox_due ON memory_outbox(status, next_attempt_at);
CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
