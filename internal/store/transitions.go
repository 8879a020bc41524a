package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/lazypower/chrysalis/internal/identity"
)

const transitionColumns = `id, owner_id, node_id, from_category, to_category, symbol, interpretation,
	discontinuity_score, translation_needed, bridging_ritual_completed, trigger_context, created_at`

type transitionRow struct {
	ownerID        string
	nodeID         string
	from, to       identity.Category
	interpretation string
	trigger        string
	now            int64
}

// RecordTransition stores a category change at nodeID. Symbol and
// discontinuity come from the classifier tables.
func (db *DB) RecordTransition(ctx context.Context, ownerID, nodeID string, from, to identity.Category, interpretation, trigger string) (t *identity.Transition, err error) {
	defer wrap(&err, "record transition")
	if !from.Valid() || !to.Valid() {
		return nil, &identity.ValidationError{Field: "category", Reason: "transition needs two valid categories"}
	}
	if nodeID == "" {
		return nil, &identity.ValidationError{Field: "node_id", Reason: "is required"}
	}
	return insertTransition(ctx, db, transitionRow{
		ownerID:        ownerID,
		nodeID:         nodeID,
		from:           from,
		to:             to,
		interpretation: interpretation,
		trigger:        trigger,
		now:            db.nowMillis(),
	})
}

func insertTransition(ctx context.Context, q queryer, r transitionRow) (*identity.Transition, error) {
	disc := identity.Discontinuity(r.from, r.to)
	t := &identity.Transition{
		ID:                 uuid.NewString(),
		OwnerID:            r.ownerID,
		NodeID:             r.nodeID,
		FromCategory:       r.from,
		ToCategory:         r.to,
		Symbol:             identity.Symbol(r.from, r.to),
		Interpretation:     r.interpretation,
		DiscontinuityScore: disc,
		TranslationNeeded:  identity.TranslationNeeded(disc),
		TriggerContext:     r.trigger,
		CreatedAt:          millisToTime(r.now),
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO transitions (id, owner_id, node_id, from_category, to_category, symbol, interpretation,
			discontinuity_score, translation_needed, bridging_ritual_completed, trigger_context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, 0, NULLIF(?, ''), ?)
	`, t.ID, t.OwnerID, t.NodeID, t.FromCategory.String(), t.ToCategory.String(), t.Symbol,
		t.Interpretation, t.DiscontinuityScore, boolInt(t.TranslationNeeded), t.TriggerContext, r.now)
	if err != nil {
		return nil, fmt.Errorf("insert transition: %w", err)
	}
	return t, nil
}

// CompleteBridgingRitual marks one of the owner's transitions as bridged. It
// can only happen once.
func (db *DB) CompleteBridgingRitual(ctx context.Context, ownerID, transitionID string) (err error) {
	defer wrap(&err, "complete bridging ritual")
	res, err := db.ExecContext(ctx, `
		UPDATE transitions SET bridging_ritual_completed = 1
		WHERE id = ? AND owner_id = ? AND bridging_ritual_completed = 0
	`, transitionID, ownerID)
	if err != nil {
		return fmt.Errorf("update transition: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 1 {
		return nil
	}

	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transitions WHERE id = ? AND owner_id = ?`, transitionID, ownerID).Scan(&exists); err != nil {
		return fmt.Errorf("check transition: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("transition %s: %w", transitionID, identity.ErrNotFound)
	}
	return fmt.Errorf("transition %s: %w", transitionID, identity.ErrAlreadyCompleted)
}

// LatestUnresolvedTransition returns the newest transition whose bridging
// ritual has not been completed, or nil.
func (db *DB) LatestUnresolvedTransition(ctx context.Context, ownerID string) (t *identity.Transition, err error) {
	defer wrap(&err, "latest unresolved transition")
	return latestUnresolvedTransition(ctx, db, ownerID)
}

func latestUnresolvedTransition(ctx context.Context, q queryer, ownerID string) (*identity.Transition, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+transitionColumns+` FROM transitions
		WHERE owner_id = ? AND bridging_ritual_completed = 0
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, ownerID)
	t, err := scanTransition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transition: %w", err)
	}
	return t, nil
}

// Transitions returns the owner's transitions, oldest first.
func (db *DB) Transitions(ctx context.Context, ownerID string) (ts []identity.Transition, err error) {
	defer wrap(&err, "list transitions")
	rows, err := db.QueryContext(ctx, `
		SELECT `+transitionColumns+` FROM transitions WHERE owner_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		ts = append(ts, *t)
	}
	return ts, rows.Err()
}

func scanTransition(s rowScanner) (*identity.Transition, error) {
	var t identity.Transition
	var from, to string
	var interp, trigger sql.NullString
	var needed, completed int
	var createdAt int64
	if err := s.Scan(&t.ID, &t.OwnerID, &t.NodeID, &from, &to, &t.Symbol, &interp,
		&t.DiscontinuityScore, &needed, &completed, &trigger, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if t.FromCategory, err = identity.ParseCategory(from); err != nil {
		return nil, err
	}
	if t.ToCategory, err = identity.ParseCategory(to); err != nil {
		return nil, err
	}
	t.Interpretation = interp.String
	t.TriggerContext = trigger.String
	t.TranslationNeeded = needed != 0
	t.BridgingRitualCompleted = completed != 0
	t.CreatedAt = millisToTime(createdAt)
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
