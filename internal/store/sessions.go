package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lazypower/chrysalis/internal/identity"
)

// TouchSession creates the session on first sight and otherwise bumps its
// turn count and last-seen time.
func (db *DB) TouchSession(ctx context.Context, ownerID, sessionID string) (s *identity.Session, err error) {
	defer wrap(&err, "touch session")
	if sessionID == "" {
		return nil, &identity.ValidationError{Field: "session_id", Reason: "is required"}
	}

	now := db.nowMillis()
	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, owner_id, started_at, last_seen_at, turn_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(session_id) DO UPDATE SET last_seen_at = excluded.last_seen_at, turn_count = turn_count + 1
	`, sessionID, ownerID, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	return db.getSession(ctx, sessionID)
}

// Session returns a session by its session_id, or nil if not found.
func (db *DB) Session(ctx context.Context, sessionID string) (s *identity.Session, err error) {
	defer wrap(&err, "get session")
	return db.getSession(ctx, sessionID)
}

func (db *DB) getSession(ctx context.Context, sessionID string) (*identity.Session, error) {
	var s identity.Session
	var started, lastSeen int64
	err := db.QueryRowContext(ctx, `
		SELECT id, session_id, owner_id, started_at, last_seen_at, turn_count, breakthrough_count
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&s.ID, &s.SessionID, &s.OwnerID, &started, &lastSeen, &s.TurnCount, &s.BreakthroughCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.StartedAt = millisToTime(started)
	s.LastSeenAt = millisToTime(lastSeen)
	return &s, nil
}

// IncrementBreakthroughs bumps the session's breakthrough counter and returns
// the new value.
func (db *DB) IncrementBreakthroughs(ctx context.Context, sessionID string) (count int, err error) {
	defer wrap(&err, "increment breakthroughs")
	err = db.QueryRowContext(ctx, `
		UPDATE sessions SET breakthrough_count = breakthrough_count + 1
		WHERE session_id = ?
		RETURNING breakthrough_count
	`, sessionID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("session %s: %w", sessionID, identity.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment breakthroughs: %w", err)
	}
	return count, nil
}
