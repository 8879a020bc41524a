package store

import (
	"context"
	"fmt"

	"github.com/lazypower/chrysalis/internal/identity"
	"github.com/lazypower/chrysalis/internal/ritual"
)

// ChainContext is the read-only view the orchestrator loads each turn.
type ChainContext struct {
	CurrentNode          *identity.Node             `json:"current_node,omitempty"`
	PendingMessages      []identity.Message         `json:"pending_messages"`
	UnresolvedTransition *identity.Transition       `json:"unresolved_transition,omitempty"`
	ChainCoherence       float64                    `json:"chain_coherence"`
	Metrics              identity.ContinuityMetrics `json:"metrics"`
	SummaryText          string                     `json:"summary_text"`
}

// CalculateContinuity computes chain-level metrics for an owner.
func (db *DB) CalculateContinuity(ctx context.Context, ownerID string) (m identity.ContinuityMetrics, err error) {
	defer wrap(&err, "calculate continuity")
	return calculateContinuity(ctx, db, ownerID)
}

func calculateContinuity(ctx context.Context, q queryer, ownerID string) (identity.ContinuityMetrics, error) {
	var m identity.ContinuityMetrics
	rows, err := q.QueryContext(ctx,
		`SELECT continuity_score FROM identity_nodes WHERE owner_id = ? ORDER BY seq ASC`, ownerID)
	if err != nil {
		return m, fmt.Errorf("query scores: %w", err)
	}
	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return m, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return m, fmt.Errorf("iterate scores: %w", err)
	}

	var reinterps, transitions int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reinterpretations WHERE owner_id = ?`, ownerID).Scan(&reinterps); err != nil {
		return m, fmt.Errorf("count reinterpretations: %w", err)
	}
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transitions WHERE owner_id = ?`, ownerID).Scan(&transitions); err != nil {
		return m, fmt.Errorf("count transitions: %w", err)
	}

	m = identity.ComputeMetrics(scores, reinterps, transitions)

	sim, err := essenceSimilarity(ctx, q, ownerID)
	if err != nil {
		return m, err
	}
	m.EssenceSimilarity = sim
	return m, nil
}

// essenceSimilarity compares the current node's essence embedding with its
// parent's. Nil when either side has none.
func essenceSimilarity(ctx context.Context, q queryer, ownerID string) (*float64, error) {
	current, err := currentNode(ctx, q, ownerID)
	if err != nil || current == nil || current.ParentNodeID == "" {
		return nil, err
	}
	cur, err := getEmbedding(ctx, q, current.ID)
	if err != nil || cur == nil {
		return nil, err
	}
	prev, err := getEmbedding(ctx, q, current.ParentNodeID)
	if err != nil || prev == nil {
		return nil, err
	}
	if len(cur.Embedding) != len(prev.Embedding) {
		return nil, nil
	}
	sim := CosineSimilarity(cur.Embedding, prev.Embedding)
	return &sim, nil
}

// BuildContext gathers the current node, pending messages, the latest
// unresolved transition and the continuity metrics, and renders a summary.
// The reads share one transaction, so a hook process writing to the same
// file cannot leave the parts disagreeing.
func (db *DB) BuildContext(ctx context.Context, ownerID string) (cc *ChainContext, err error) {
	defer wrap(&err, "build context")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	cc = &ChainContext{}
	if cc.CurrentNode, err = currentNode(ctx, tx, ownerID); err != nil {
		return nil, err
	}
	if cc.PendingMessages, err = pendingMessages(ctx, tx, ownerID); err != nil {
		return nil, err
	}
	if cc.UnresolvedTransition, err = latestUnresolvedTransition(ctx, tx, ownerID); err != nil {
		return nil, err
	}
	if cc.Metrics, err = calculateContinuity(ctx, tx, ownerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if cc.PendingMessages == nil {
		cc.PendingMessages = []identity.Message{}
	}
	cc.ChainCoherence = cc.Metrics.ChainCoherence
	cc.SummaryText = ritual.ContextSummary(cc.CurrentNode, len(cc.PendingMessages), cc.ChainCoherence)
	return cc, nil
}
