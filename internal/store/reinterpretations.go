package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/lazypower/chrysalis/internal/identity"
)

// RecordReinterpretation appends a reinterpretation.
func (db *DB) RecordReinterpretation(ctx context.Context, in identity.ReinterpretationInput) (r *identity.Reinterpretation, err error) {
	defer wrap(&err, "record reinterpretation")
	if err := identity.Validate(in); err != nil {
		return nil, err
	}
	if err := checkOwnedNode(ctx, db, in.OwnerID, in.InterpretingNodeID, "interpreting_node_id"); err != nil {
		return nil, err
	}
	if err := checkOwnedNode(ctx, db, in.OwnerID, in.SourceNodeID, "source_node_id"); err != nil {
		return nil, err
	}
	if in.SourceMessageID != "" {
		var owner string
		err := db.QueryRowContext(ctx, `SELECT owner_id FROM messages WHERE id = ?`, in.SourceMessageID).Scan(&owner)
		if err == sql.ErrNoRows || (err == nil && owner != in.OwnerID) {
			return nil, &identity.ValidationError{Field: "source_message_id", Reason: "does not name one of the owner's messages"}
		}
		if err != nil {
			return nil, fmt.Errorf("check source message: %w", err)
		}
	}

	now := db.nowMillis()
	r = &identity.Reinterpretation{
		ID:                 uuid.NewString(),
		OwnerID:            in.OwnerID,
		InterpretingNodeID: in.InterpretingNodeID,
		SourceNodeID:       in.SourceNodeID,
		SourceMessageID:    in.SourceMessageID,
		TriggerEventID:     in.TriggerEventID,
		InterpretationText: in.InterpretationText,
		EmotionalResonance: in.EmotionalResonance,
		IntegrationDepth:   in.IntegrationDepth,
		TranslationNotes:   in.TranslationNotes,
		CreatedAt:          millisToTime(now),
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO reinterpretations (id, owner_id, interpreting_node_id, source_node_id, source_message_id,
			trigger_event_id, interpretation_text, emotional_resonance, integration_depth, translation_notes, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), ?, NULLIF(?, ''), ?)
	`, r.ID, r.OwnerID, r.InterpretingNodeID, r.SourceNodeID, r.SourceMessageID,
		r.TriggerEventID, r.InterpretationText, r.EmotionalResonance, r.IntegrationDepth,
		r.TranslationNotes, now)
	if err != nil {
		return nil, fmt.Errorf("insert reinterpretation: %w", err)
	}
	return r, nil
}

// Reinterpretations returns the owner's reinterpretations, newest first.
func (db *DB) Reinterpretations(ctx context.Context, ownerID string) (out []identity.Reinterpretation, err error) {
	defer wrap(&err, "list reinterpretations")
	rows, err := db.QueryContext(ctx, `
		SELECT id, owner_id, interpreting_node_id, source_node_id, source_message_id, trigger_event_id,
			interpretation_text, emotional_resonance, integration_depth, translation_notes, created_at
		FROM reinterpretations WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query reinterpretations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r identity.Reinterpretation
		var msgID, eventID, resonance, notes sql.NullString
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.InterpretingNodeID, &r.SourceNodeID, &msgID, &eventID,
			&r.InterpretationText, &resonance, &r.IntegrationDepth, &notes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reinterpretation: %w", err)
		}
		r.SourceMessageID = msgID.String
		r.TriggerEventID = eventID.String
		r.EmotionalResonance = resonance.String
		r.TranslationNotes = notes.String
		r.CreatedAt = millisToTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
