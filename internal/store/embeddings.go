package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lazypower/chrysalis/internal/identity"
)

// EmbeddingRecord holds the essence embedding of one node.
type EmbeddingRecord struct {
	NodeID     string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveEmbedding stores or replaces the essence embedding for a node.
func (db *DB) SaveEmbedding(ctx context.Context, nodeID string, embedding []float64, model string) (err error) {
	defer wrap(&err, "save embedding")
	if len(embedding) == 0 {
		return &identity.ValidationError{Field: "embedding", Reason: "is empty"}
	}
	return saveEmbedding(ctx, db, nodeID, embedding, model, db.nowMillis())
}

func saveEmbedding(ctx context.Context, q queryer, nodeID string, embedding []float64, model string, now int64) error {
	blob := encodeEmbedding(embedding)
	_, err := q.ExecContext(ctx, `
		INSERT INTO node_embeddings (node_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET embedding = excluded.embedding, model = excluded.model,
			dimensions = excluded.dimensions, created_at = excluded.created_at
	`, nodeID, blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

// Embedding returns the embedding for a node, or nil if none is stored.
func (db *DB) Embedding(ctx context.Context, nodeID string) (rec *EmbeddingRecord, err error) {
	defer wrap(&err, "get embedding")
	return getEmbedding(ctx, db, nodeID)
}

func getEmbedding(ctx context.Context, q queryer, nodeID string) (*EmbeddingRecord, error) {
	var r EmbeddingRecord
	var blob []byte
	err := q.QueryRowContext(ctx, `
		SELECT node_id, embedding, model, dimensions, created_at
		FROM node_embeddings WHERE node_id = ?
	`, nodeID).Scan(&r.NodeID, &blob, &r.Model, &r.Dimensions, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	r.Embedding = decodeEmbedding(blob)
	return &r, nil
}

// OwnerEmbeddings returns the embeddings of every node in the owner's chain,
// oldest node first.
func (db *DB) OwnerEmbeddings(ctx context.Context, ownerID string) (recs []EmbeddingRecord, err error) {
	defer wrap(&err, "owner embeddings")
	rows, err := db.QueryContext(ctx, `
		SELECT e.node_id, e.embedding, e.model, e.dimensions, e.created_at
		FROM node_embeddings e JOIN identity_nodes n ON n.id = e.node_id
		WHERE n.owner_id = ?
		ORDER BY n.seq ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r EmbeddingRecord
		var blob []byte
		if err := rows.Scan(&r.NodeID, &blob, &r.Model, &r.Dimensions, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		r.Embedding = decodeEmbedding(blob)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// EssenceCorpus returns every non-empty essence summary in the database. It
// seeds the TF-IDF vocabulary.
func (db *DB) EssenceCorpus(ctx context.Context) (docs []string, err error) {
	defer wrap(&err, "essence corpus")
	rows, err := db.QueryContext(ctx, `SELECT essence_summary FROM identity_nodes WHERE essence_summary != ''`)
	if err != nil {
		return nil, fmt.Errorf("query essences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan essence: %w", err)
		}
		docs = append(docs, s)
	}
	return docs, rows.Err()
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched or zero-length vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
