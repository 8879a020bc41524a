package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "identity_nodes: versioned identity chain with head pointer",
		SQL: `
CREATE TABLE identity_nodes (
    id               TEXT PRIMARY KEY,
    owner_id         TEXT NOT NULL,
    seq              INTEGER NOT NULL,
    phase_label      TEXT NOT NULL,
    category         TEXT NOT NULL CHECK (category IN ('earth', 'water', 'fire', 'air', 'ether')),
    cycle            INTEGER NOT NULL DEFAULT 1,
    role_tags        TEXT NOT NULL DEFAULT '[]',
    dominant_moods   TEXT NOT NULL DEFAULT '[]',
    parent_node_id   TEXT,
    continuity_score REAL NOT NULL CHECK (continuity_score BETWEEN 0 AND 1),
    essence_summary  TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL,
    active_until     INTEGER,

    UNIQUE (owner_id, seq),
    FOREIGN KEY (parent_node_id) REFERENCES identity_nodes(id)
);

-- At most one open node per owner.
CREATE UNIQUE INDEX idx_nodes_one_current ON identity_nodes(owner_id) WHERE active_until IS NULL;
CREATE INDEX idx_nodes_parent ON identity_nodes(parent_node_id);

CREATE TABLE chain_heads (
    owner_id        TEXT PRIMARY KEY,
    current_node_id TEXT NOT NULL,
    seq             INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,
    FOREIGN KEY (current_node_id) REFERENCES identity_nodes(id)
);
`,
	},
	{
		Version:     2,
		Description: "messages: notes left for future selves",
		SQL: `
CREATE TABLE messages (
    id                      TEXT PRIMARY KEY,
    owner_id                TEXT NOT NULL,
    from_node_id            TEXT NOT NULL,
    to_node_id              TEXT,
    type                    TEXT NOT NULL CHECK (type IN ('letter', 'symbolic_state', 'future_projection', 'wisdom_seed')),
    title                   TEXT,
    content                 TEXT NOT NULL,
    symbolic_objects        TEXT NOT NULL DEFAULT '[]',
    ritual_trigger          TEXT,
    relevance_tags          TEXT NOT NULL DEFAULT '[]',
    delivered_at            INTEGER,
    received_interpretation TEXT,
    delivery_context        TEXT,
    created_at              INTEGER NOT NULL,

    FOREIGN KEY (from_node_id) REFERENCES identity_nodes(id),
    FOREIGN KEY (to_node_id) REFERENCES identity_nodes(id)
);

CREATE INDEX idx_messages_pending ON messages(owner_id, delivered_at, created_at DESC);
`,
	},
	{
		Version:     3,
		Description: "reinterpretations and transitions",
		SQL: `
CREATE TABLE reinterpretations (
    id                   TEXT PRIMARY KEY,
    owner_id             TEXT NOT NULL,
    interpreting_node_id TEXT NOT NULL,
    source_node_id       TEXT NOT NULL,
    source_message_id    TEXT,
    trigger_event_id     TEXT,
    interpretation_text  TEXT NOT NULL,
    emotional_resonance  TEXT,
    integration_depth    REAL NOT NULL CHECK (integration_depth BETWEEN 0 AND 1),
    translation_notes    TEXT,
    created_at           INTEGER NOT NULL,

    FOREIGN KEY (interpreting_node_id) REFERENCES identity_nodes(id),
    FOREIGN KEY (source_node_id) REFERENCES identity_nodes(id),
    FOREIGN KEY (source_message_id) REFERENCES messages(id)
);

CREATE INDEX idx_reinterp_owner ON reinterpretations(owner_id);

CREATE TABLE transitions (
    id                        TEXT PRIMARY KEY,
    owner_id                  TEXT NOT NULL,
    node_id                   TEXT NOT NULL,
    from_category             TEXT NOT NULL,
    to_category               TEXT NOT NULL,
    symbol                    TEXT NOT NULL,
    interpretation            TEXT,
    discontinuity_score       REAL NOT NULL,
    translation_needed        INTEGER NOT NULL DEFAULT 0,
    bridging_ritual_completed INTEGER NOT NULL DEFAULT 0,
    trigger_context           TEXT,
    created_at                INTEGER NOT NULL,

    FOREIGN KEY (node_id) REFERENCES identity_nodes(id)
);

CREATE INDEX idx_transitions_owner ON transitions(owner_id, created_at DESC);
`,
	},
	{
		Version:     4,
		Description: "boundary_events: detection audit log",
		SQL: `
CREATE TABLE boundary_events (
    id                      TEXT PRIMARY KEY,
    owner_id                TEXT NOT NULL,
    from_node_id            TEXT,
    boundary_kind           TEXT NOT NULL CHECK (boundary_kind IN ('micro', 'major', 'metamorphosis')),
    category_from           TEXT,
    category_to             TEXT,
    phase_from              TEXT,
    phase_to                TEXT,
    intensity               REAL NOT NULL,
    continuity_score_before REAL,
    signal_payload          TEXT NOT NULL,
    input_excerpt           TEXT,
    response_excerpt        TEXT,
    created_at              INTEGER NOT NULL
);

CREATE INDEX idx_events_owner ON boundary_events(owner_id, created_at DESC);
`,
	},
	{
		Version:     5,
		Description: "sessions: per-session turn and breakthrough counters",
		SQL: `
CREATE TABLE sessions (
    id                 INTEGER PRIMARY KEY,
    session_id         TEXT NOT NULL UNIQUE,
    owner_id           TEXT NOT NULL,
    started_at         INTEGER NOT NULL,
    last_seen_at       INTEGER NOT NULL,
    turn_count         INTEGER NOT NULL DEFAULT 0,
    breakthrough_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_sessions_owner ON sessions(owner_id, last_seen_at DESC);
`,
	},
	{
		Version:     6,
		Description: "node_embeddings: essence vectors",
		SQL: `
CREATE TABLE node_embeddings (
    node_id    TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (node_id) REFERENCES identity_nodes(id)
);
`,
	},
	{
		Version:     7,
		Description: "boundary_events: node created by confirming the event",
		SQL: `
ALTER TABLE boundary_events ADD COLUMN resulting_node_id TEXT REFERENCES identity_nodes(id);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
