package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/lazypower/chrysalis/internal/identity"
)

// RecordBoundaryEvent appends a detection outcome to the audit log. Excerpts
// are cut to identity.ExcerptLimit.
func (db *DB) RecordBoundaryEvent(ctx context.Context, in identity.BoundaryEventInput) (ev *identity.BoundaryEvent, err error) {
	defer wrap(&err, "record boundary event")
	if err := identity.Validate(in); err != nil {
		return nil, err
	}

	now := db.nowMillis()
	ev = &identity.BoundaryEvent{
		ID:                    uuid.NewString(),
		OwnerID:               in.OwnerID,
		FromNodeID:            in.FromNodeID,
		Kind:                  in.Kind,
		CategoryFrom:          in.CategoryFrom,
		CategoryTo:            in.CategoryTo,
		PhaseFrom:             in.PhaseFrom,
		PhaseTo:               in.PhaseTo,
		Intensity:             in.Intensity,
		ContinuityScoreBefore: in.ContinuityScoreBefore,
		SignalPayload:         in.SignalPayload,
		InputExcerpt:          identity.Excerpt(in.InputExcerpt, identity.ExcerptLimit),
		ResponseExcerpt:       identity.Excerpt(in.ResponseExcerpt, identity.ExcerptLimit),
		CreatedAt:             millisToTime(now),
	}

	var before any
	if ev.ContinuityScoreBefore != nil {
		before = *ev.ContinuityScoreBefore
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO boundary_events (id, owner_id, from_node_id, boundary_kind, category_from, category_to,
			phase_from, phase_to, intensity, continuity_score_before, signal_payload,
			input_excerpt, response_excerpt, created_at)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)
	`, ev.ID, ev.OwnerID, ev.FromNodeID, string(ev.Kind), optCategory(ev.CategoryFrom), optCategory(ev.CategoryTo),
		ev.PhaseFrom, ev.PhaseTo, ev.Intensity, before, string(ev.SignalPayload),
		ev.InputExcerpt, ev.ResponseExcerpt, now)
	if err != nil {
		return nil, fmt.Errorf("insert boundary event: %w", err)
	}
	return ev, nil
}

const eventColumns = `id, owner_id, from_node_id, boundary_kind, category_from, category_to, phase_from, phase_to,
	intensity, continuity_score_before, signal_payload, input_excerpt, response_excerpt, resulting_node_id, created_at`

// BoundaryEvents returns the owner's most recent events, newest first.
func (db *DB) BoundaryEvents(ctx context.Context, ownerID string, limit int) (events []identity.BoundaryEvent, err error) {
	defer wrap(&err, "list boundary events")
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM boundary_events WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query boundary events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan boundary event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// BoundaryEvent returns one of the owner's events, or nil if the owner has
// no event with that id.
func (db *DB) BoundaryEvent(ctx context.Context, ownerID, id string) (ev *identity.BoundaryEvent, err error) {
	defer wrap(&err, "get boundary event")
	row := db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM boundary_events WHERE id = ? AND owner_id = ?`, id, ownerID)
	ev, err = scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get boundary event: %w", err)
	}
	return ev, nil
}

// LinkEventNode records the node that confirming an event produced. An
// event is linked once; a second link returns identity.ErrAlreadyConfirmed.
func (db *DB) LinkEventNode(ctx context.Context, ownerID, eventID, nodeID string) (err error) {
	defer wrap(&err, "link event node")
	if err := checkOwnedNode(ctx, db, ownerID, nodeID, "node_id"); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE boundary_events SET resulting_node_id = ?
		WHERE id = ? AND owner_id = ? AND resulting_node_id IS NULL
	`, nodeID, eventID, ownerID)
	if err != nil {
		return fmt.Errorf("update boundary event: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 1 {
		return nil
	}

	var exists int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM boundary_events WHERE id = ? AND owner_id = ?`, eventID, ownerID).Scan(&exists); err != nil {
		return fmt.Errorf("check boundary event: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("boundary event %s: %w", eventID, identity.ErrNotFound)
	}
	return fmt.Errorf("boundary event %s: %w", eventID, identity.ErrAlreadyConfirmed)
}

func scanEvent(s rowScanner) (*identity.BoundaryEvent, error) {
	var ev identity.BoundaryEvent
	var kind, payload string
	var fromNode, catFrom, catTo, phaseFrom, phaseTo, input, response, resulting sql.NullString
	var before sql.NullFloat64
	var createdAt int64
	if err := s.Scan(&ev.ID, &ev.OwnerID, &fromNode, &kind, &catFrom, &catTo, &phaseFrom, &phaseTo,
		&ev.Intensity, &before, &payload, &input, &response, &resulting, &createdAt); err != nil {
		return nil, err
	}
	ev.Kind = identity.BoundaryKind(kind)
	ev.FromNodeID = fromNode.String
	ev.CategoryFrom, _ = identity.ParseCategory(catFrom.String)
	ev.CategoryTo, _ = identity.ParseCategory(catTo.String)
	ev.PhaseFrom = phaseFrom.String
	ev.PhaseTo = phaseTo.String
	if before.Valid {
		v := before.Float64
		ev.ContinuityScoreBefore = &v
	}
	ev.SignalPayload = []byte(payload)
	ev.InputExcerpt = input.String
	ev.ResponseExcerpt = response.String
	ev.ResultingNodeID = resulting.String
	ev.CreatedAt = millisToTime(createdAt)
	return &ev, nil
}

func optCategory(c identity.Category) any {
	if !c.Valid() {
		return nil
	}
	return c.String()
}
