package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lazypower/chrysalis/internal/identity"
)

const nodeColumns = `id, owner_id, seq, phase_label, category, cycle, role_tags, dominant_moods,
	parent_node_id, continuity_score, essence_summary, created_at, active_until`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type chainHead struct {
	currentNodeID string
	seq           int64
}

// CreateNode appends a node to the owner's chain. In one transaction it
// closes the current node, inserts the new one as its child, advances the
// chain head, stores the essence embedding and records a transition when the
// category changed. A concurrent writer that advanced the head first causes
// identity.ErrConflict.
func (db *DB) CreateNode(ctx context.Context, in identity.NodeInput) (node *identity.Node, err error) {
	defer wrap(&err, "create node")

	if err := identity.Validate(in); err != nil {
		return nil, err
	}

	unlock := db.lockOwner(in.OwnerID)
	defer unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	head, err := readHead(ctx, tx, in.OwnerID)
	if err != nil {
		return nil, err
	}

	var parent *identity.Node
	if head != nil {
		parent, err = getNode(ctx, tx, head.currentNodeID)
		if err != nil {
			return nil, err
		}
	}

	now := db.nowMillis()
	roleTags := identity.NormalizeTags(in.RoleTags)
	n := &identity.Node{
		ID:             uuid.NewString(),
		OwnerID:        in.OwnerID,
		Seq:            1,
		Category:       in.Category,
		Cycle:          in.Cycle,
		RoleTags:       roleTags,
		DominantMoods:  identity.CleanList(in.DominantMoods),
		EssenceSummary: in.EssenceSummary,
		CreatedAt:      millisToTime(now),
	}
	if head != nil {
		n.Seq = head.seq + 1
	}
	if n.Cycle < 1 {
		n.Cycle = 1
		if parent != nil && parent.Cycle > 0 {
			n.Cycle = parent.Cycle
		}
	}
	n.PhaseLabel = in.PhaseLabel
	if n.PhaseLabel == "" {
		n.PhaseLabel = identity.PhaseLabel(n.Category, n.Cycle)
	}
	if in.ContinuityScore != nil {
		n.ContinuityScore = *in.ContinuityScore
	} else {
		n.ContinuityScore = identity.NodeContinuity(parent, n.Category, roleTags)
	}

	if parent != nil {
		n.ParentNodeID = parent.ID
		res, err := tx.ExecContext(ctx,
			`UPDATE identity_nodes SET active_until = ? WHERE id = ? AND active_until IS NULL`,
			now, parent.ID)
		if err != nil {
			return nil, fmt.Errorf("close current node: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows != 1 {
			return nil, fmt.Errorf("close current node: %w", identity.ErrConflict)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identity_nodes (id, owner_id, seq, phase_label, category, cycle, role_tags, dominant_moods,
			parent_node_id, continuity_score, essence_summary, created_at, active_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, NULL)
	`, n.ID, n.OwnerID, n.Seq, n.PhaseLabel, n.Category.String(), n.Cycle,
		encodeList(n.RoleTags), encodeList(n.DominantMoods),
		n.ParentNodeID, n.ContinuityScore, n.EssenceSummary, now)
	if isConstraintErr(err) {
		return nil, fmt.Errorf("insert node: %w", identity.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("insert node: %w", err)
	}

	if err := advanceHead(ctx, tx, in.OwnerID, head, n, now); err != nil {
		return nil, err
	}

	if len(in.EssenceEmbedding) > 0 {
		model := in.EmbeddingModel
		if model == "" {
			model = "unknown"
		}
		if err := saveEmbedding(ctx, tx, n.ID, in.EssenceEmbedding, model, now); err != nil {
			return nil, err
		}
		n.EssenceEmbedding = in.EssenceEmbedding
	}

	if parent != nil && parent.Category != n.Category {
		if _, err := insertTransition(ctx, tx, transitionRow{
			ownerID:        n.OwnerID,
			nodeID:         n.ID,
			from:           parent.Category,
			to:             n.Category,
			interpretation: in.TransitionInterpretation,
			trigger:        in.TriggerContext,
			now:            now,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func readHead(ctx context.Context, q queryer, ownerID string) (*chainHead, error) {
	var h chainHead
	err := q.QueryRowContext(ctx,
		`SELECT current_node_id, seq FROM chain_heads WHERE owner_id = ?`, ownerID,
	).Scan(&h.currentNodeID, &h.seq)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chain head: %w", err)
	}
	return &h, nil
}

// advanceHead moves the head to n, conditional on the head still being at
// the observed sequence.
func advanceHead(ctx context.Context, q queryer, ownerID string, observed *chainHead, n *identity.Node, now int64) error {
	if observed == nil {
		_, err := q.ExecContext(ctx, `
			INSERT INTO chain_heads (owner_id, current_node_id, seq, updated_at) VALUES (?, ?, ?, ?)
		`, ownerID, n.ID, n.Seq, now)
		if isConstraintErr(err) {
			return fmt.Errorf("insert chain head: %w", identity.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert chain head: %w", err)
		}
		return nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE chain_heads SET current_node_id = ?, seq = ?, updated_at = ?
		WHERE owner_id = ? AND seq = ?
	`, n.ID, n.Seq, now, ownerID, observed.seq)
	if err != nil {
		return fmt.Errorf("advance chain head: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows != 1 {
		return fmt.Errorf("advance chain head: %w", identity.ErrConflict)
	}
	return nil
}

// CurrentNode returns the owner's open node, or nil if the chain is empty.
func (db *DB) CurrentNode(ctx context.Context, ownerID string) (node *identity.Node, err error) {
	defer wrap(&err, "current node")
	return currentNode(ctx, db, ownerID)
}

func currentNode(ctx context.Context, q queryer, ownerID string) (*identity.Node, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM identity_nodes WHERE owner_id = ? AND active_until IS NULL`, ownerID)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current node: %w", err)
	}
	return n, nil
}

// Node returns a node by id, or nil if not found.
func (db *DB) Node(ctx context.Context, id string) (node *identity.Node, err error) {
	defer wrap(&err, "get node")
	return getNode(ctx, db, id)
}

func getNode(ctx context.Context, q queryer, id string) (*identity.Node, error) {
	row := q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM identity_nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

// Chain returns the owner's nodes, oldest first.
func (db *DB) Chain(ctx context.Context, ownerID string) (nodes []identity.Node, err error) {
	defer wrap(&err, "get chain")
	rows, err := db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM identity_nodes WHERE owner_id = ? ORDER BY seq ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

// checkOwnedNode rejects a node id that does not exist or belongs to another
// owner. An empty id passes.
func checkOwnedNode(ctx context.Context, q queryer, ownerID, nodeID, field string) error {
	if nodeID == "" {
		return nil
	}
	var owner string
	err := q.QueryRowContext(ctx, `SELECT owner_id FROM identity_nodes WHERE id = ?`, nodeID).Scan(&owner)
	if err == sql.ErrNoRows || (err == nil && owner != ownerID) {
		return &identity.ValidationError{Field: field, Reason: "does not name one of the owner's nodes"}
	}
	if err != nil {
		return fmt.Errorf("check %s: %w", field, err)
	}
	return nil
}

// CountCurrent returns how many open nodes the owner has. The chain invariant
// keeps this at zero or one.
func (db *DB) CountCurrent(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identity_nodes WHERE owner_id = ? AND active_until IS NULL`, ownerID,
	).Scan(&count)
	if err != nil {
		return 0, identity.Storage("count current", err)
	}
	return count, nil
}

func scanNode(s rowScanner) (*identity.Node, error) {
	var n identity.Node
	var category, roleTags, moods string
	var parentID sql.NullString
	var createdAt int64
	var activeUntil sql.NullInt64
	if err := s.Scan(&n.ID, &n.OwnerID, &n.Seq, &n.PhaseLabel, &category, &n.Cycle,
		&roleTags, &moods, &parentID, &n.ContinuityScore, &n.EssenceSummary,
		&createdAt, &activeUntil); err != nil {
		return nil, err
	}
	cat, err := identity.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	n.Category = cat
	n.RoleTags = decodeList(roleTags)
	n.DominantMoods = decodeList(moods)
	n.ParentNodeID = parentID.String
	n.CreatedAt = millisToTime(createdAt)
	n.ActiveUntil = nullTime(activeUntil)
	return &n, nil
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}
