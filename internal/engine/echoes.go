package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lazypower/chrysalis/internal/identity"
	"github.com/lazypower/chrysalis/internal/store"
)

// ErrNoEmbedder is returned by operations that need an embedder when none
// is configured.
var ErrNoEmbedder = errors.New("no embedder configured")

// Echo is a past node whose essence resembles a query.
type Echo struct {
	Node       identity.Node `json:"node"`
	Similarity float64       `json:"similarity"`
}

const defaultEchoLimit = 5

// FindEchoes ranks the owner's nodes by cosine similarity between their
// essence embedding and the embedded query. Nodes embedded by a different
// model are re-embedded first.
func (e *Engine) FindEchoes(ctx context.Context, ownerID, query string, limit int) ([]Echo, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, &identity.ValidationError{Field: "q", Reason: "is required"}
	}
	emb := e.embedder()
	if emb == nil {
		return nil, ErrNoEmbedder
	}
	if limit <= 0 {
		limit = defaultEchoLimit
	}

	if _, err := e.EmbedMissing(ctx, ownerID); err != nil {
		return nil, err
	}

	queryVec, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	recs, err := e.DB.OwnerEmbeddings(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return []Echo{}, nil
	}
	nodes, err := e.DB.Chain(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]identity.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	echoes := []Echo{}
	for _, r := range recs {
		if r.Model != emb.Model() {
			continue
		}
		n, ok := byID[r.NodeID]
		if !ok {
			continue
		}
		sim := store.CosineSimilarity(queryVec, r.Embedding)
		if sim <= 0 {
			continue
		}
		echoes = append(echoes, Echo{Node: n, Similarity: sim})
	}

	// Newer nodes first among equal scores.
	sort.SliceStable(echoes, func(i, j int) bool {
		if echoes[i].Similarity != echoes[j].Similarity {
			return echoes[i].Similarity > echoes[j].Similarity
		}
		return echoes[i].Node.Seq > echoes[j].Node.Seq
	})
	if len(echoes) > limit {
		echoes = echoes[:limit]
	}
	return echoes, nil
}

// EmbedMissing embeds the owner's nodes that have an essence but no vector
// from the current model. Individual failures are logged and skipped.
func (e *Engine) EmbedMissing(ctx context.Context, ownerID string) (int, error) {
	emb := e.embedder()
	if emb == nil {
		return 0, nil
	}

	nodes, err := e.DB.Chain(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	recs, err := e.DB.OwnerEmbeddings(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(recs))
	for _, r := range recs {
		if r.Model == emb.Model() {
			have[r.NodeID] = true
		}
	}

	embedded := 0
	for _, n := range nodes {
		if n.EssenceSummary == "" || have[n.ID] {
			continue
		}
		vec, err := emb.Embed(ctx, n.EssenceSummary)
		if err != nil {
			e.Log.Warn("embed missing: embed node", zap.String("node", n.ID), zap.Error(err))
			continue
		}
		if err := e.DB.SaveEmbedding(ctx, n.ID, vec, emb.Model()); err != nil {
			e.Log.Warn("embed missing: save embedding", zap.String("node", n.ID), zap.Error(err))
			continue
		}
		embedded++
	}
	if embedded > 0 {
		e.Log.Info("embedded missing essences", zap.String("owner", ownerID), zap.Int("count", embedded))
	}
	return embedded, nil
}
