package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lazypower/chrysalis/internal/identity"
)

// DefaultMessageLimit applies when RelevantMessages is called without a limit.
const DefaultMessageLimit = 3

const messageColumns = `id, owner_id, from_node_id, to_node_id, type, title, content, symbolic_objects,
	ritual_trigger, relevance_tags, delivered_at, received_interpretation, delivery_context, created_at`

// SendMessage stores a message for a future self. Relevance tags are
// normalized to lowercase slugs.
func (db *DB) SendMessage(ctx context.Context, in identity.MessageInput) (msg *identity.Message, err error) {
	defer wrap(&err, "send message")
	if err := identity.Validate(in); err != nil {
		return nil, err
	}
	if err := checkOwnedNode(ctx, db, in.OwnerID, in.FromNodeID, "from_node_id"); err != nil {
		return nil, err
	}
	if err := checkOwnedNode(ctx, db, in.OwnerID, in.ToNodeID, "to_node_id"); err != nil {
		return nil, err
	}

	now := db.nowMillis()
	m := &identity.Message{
		ID:              uuid.NewString(),
		OwnerID:         in.OwnerID,
		FromNodeID:      in.FromNodeID,
		ToNodeID:        in.ToNodeID,
		Type:            in.Type,
		Title:           strings.TrimSpace(in.Title),
		Content:         in.Content,
		SymbolicObjects: identity.CleanList(in.SymbolicObjects),
		RitualTrigger:   in.RitualTrigger,
		RelevanceTags:   identity.NormalizeTags(in.RelevanceTags),
		CreatedAt:       millisToTime(now),
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO messages (id, owner_id, from_node_id, to_node_id, type, title, content, symbolic_objects,
			ritual_trigger, relevance_tags, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?, ?)
	`, m.ID, m.OwnerID, m.FromNodeID, m.ToNodeID, string(m.Type), m.Title, m.Content,
		encodeList(m.SymbolicObjects), m.RitualTrigger, encodeList(m.RelevanceTags), now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Message returns a message by id, or nil if not found.
func (db *DB) Message(ctx context.Context, id string) (msg *identity.Message, err error) {
	defer wrap(&err, "get message")
	row := db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err = scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// PendingMessages returns undelivered messages addressed to any future self
// or to the owner's current node, newest first.
func (db *DB) PendingMessages(ctx context.Context, ownerID string) (msgs []identity.Message, err error) {
	defer wrap(&err, "pending messages")
	return pendingMessages(ctx, db, ownerID)
}

func pendingMessages(ctx context.Context, q queryer, ownerID string) ([]identity.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE owner_id = ? AND delivered_at IS NULL
		  AND (to_node_id IS NULL
		       OR to_node_id = (SELECT current_node_id FROM chain_heads WHERE owner_id = ?))
		ORDER BY created_at DESC, rowid DESC
	`, ownerID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query pending messages: %w", err)
	}
	defer rows.Close()

	msgs := []identity.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// RelevantMessages ranks pending messages by how many of their tags match
// themes, breaking ties by recency. With no themes or no match it falls back
// to the most recent pending messages.
func (db *DB) RelevantMessages(ctx context.Context, ownerID string, themes []string, limit int) ([]identity.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	pending, err := db.PendingMessages(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return rankByThemes(pending, themes, limit), nil
}

func rankByThemes(pending []identity.Message, themes []string, limit int) []identity.Message {
	want := make(map[string]bool)
	for _, t := range identity.NormalizeTags(themes) {
		want[t] = true
	}

	type scored struct {
		msg     identity.Message
		overlap int
	}
	var matches []scored
	if len(want) > 0 {
		for _, m := range pending {
			overlap := 0
			for _, tag := range m.RelevanceTags {
				if want[tag] {
					overlap++
				}
			}
			if overlap > 0 {
				matches = append(matches, scored{m, overlap})
			}
		}
	}

	if len(matches) == 0 {
		if len(pending) > limit {
			pending = pending[:limit]
		}
		return pending
	}

	// pending is already newest-first, so a stable sort keeps recency within
	// equal overlap.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].overlap > matches[j].overlap
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]identity.Message, len(matches))
	for i, s := range matches {
		out[i] = s.msg
	}
	return out
}

// MarkDelivered records that one of the owner's messages was surfaced.
// Delivery happens once: a second call returns identity.ErrAlreadyDelivered
// and keeps the original timestamp. Another owner's message is not found.
func (db *DB) MarkDelivered(ctx context.Context, ownerID, id, interpretation string, deliveryContext json.RawMessage) (err error) {
	defer wrap(&err, "mark delivered")

	var dc any
	if len(deliveryContext) > 0 {
		if !json.Valid(deliveryContext) {
			return &identity.ValidationError{Field: "delivery_context", Reason: "must be valid JSON"}
		}
		dc = string(deliveryContext)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE messages SET delivered_at = ?, received_interpretation = NULLIF(?, ''), delivery_context = ?
		WHERE id = ? AND owner_id = ? AND delivered_at IS NULL
	`, db.nowMillis(), interpretation, dc, id, ownerID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 1 {
		return nil
	}

	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE id = ? AND owner_id = ?`, id, ownerID).Scan(&exists); err != nil {
		return fmt.Errorf("check message: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("message %s: %w", id, identity.ErrNotFound)
	}
	return fmt.Errorf("message %s: %w", id, identity.ErrAlreadyDelivered)
}

func scanMessage(s rowScanner) (*identity.Message, error) {
	var m identity.Message
	var msgType, objects, tags string
	var toNode, title, trigger, interp, dc sql.NullString
	var deliveredAt sql.NullInt64
	var createdAt int64
	if err := s.Scan(&m.ID, &m.OwnerID, &m.FromNodeID, &toNode, &msgType, &title, &m.Content,
		&objects, &trigger, &tags, &deliveredAt, &interp, &dc, &createdAt); err != nil {
		return nil, err
	}
	m.Type = identity.MessageType(msgType)
	m.ToNodeID = toNode.String
	m.Title = title.String
	m.SymbolicObjects = decodeList(objects)
	m.RitualTrigger = trigger.String
	m.RelevanceTags = decodeList(tags)
	m.DeliveredAt = nullTime(deliveredAt)
	m.ReceivedInterpretation = interp.String
	if dc.Valid && dc.String != "" {
		m.DeliveryContext = json.RawMessage(dc.String)
	}
	m.CreatedAt = millisToTime(createdAt)
	return &m, nil
}
