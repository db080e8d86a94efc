package storage

import (
	"context"
	"fmt"

	"contentflow/internal/chunking"
	"contentflow/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ListHashes returns the committed chunk set of a document in ordinal order.
func (r *ChunkRepo) ListHashes(ctx context.Context, documentID int64) ([]chunking.PreviousChunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT ordinal, content_hash
FROM chunks
WHERE document_id=$1
ORDER BY ordinal ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunk hashes: %w", err)
	}
	defer rows.Close()
	out := make([]chunking.PreviousChunk, 0, 32)
	for rows.Next() {
		var c chunking.PreviousChunk
		if err := rows.Scan(&c.Ordinal, &c.ContentHash); err != nil {
			return nil, fmt.Errorf("scan chunk hash: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk hashes: %w", err)
	}
	return out, nil
}

type StagedEmbedding struct {
	ContentHash string
	Vector      []float32
}

// StageEmbeddings stores vectors computed by a run until CommitChunks picks
// them up. Re-staging the same hash for the same run is a no-op.
func (r *ChunkRepo) StageEmbeddings(ctx context.Context, runID string, documentID int64, staged []StagedEmbedding) error {
	if len(staged) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range staged {
		batch.Queue(`
INSERT INTO pending_embeddings (run_id, document_id, content_hash, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id, content_hash) DO NOTHING`, runID, documentID, s.ContentHash, pgvector.NewVector(s.Vector))
	}
	if err := r.db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("stage embeddings: %w", err)
	}
	return nil
}

type NewChunk struct {
	Ordinal     int
	Text        string
	ContentHash string
	Metadata    map[string]string
}

// ReplaceChunks swaps the whole chunk set of a document in one transaction.
// Vectors come from the run's staging area or, for kept chunks, from the
// chunk rows being replaced. Readers see either the old set or the new one.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, runID string, documentID int64, chunks []NewChunk) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var locked int64
	if err := tx.QueryRow(ctx, `SELECT id FROM documents WHERE id=$1 FOR UPDATE`, documentID).Scan(&locked); err != nil {
		return fmt.Errorf("lock document %d: %w", documentID, err)
	}

	staged, existing, err := collectVectors(ctx, tx, runID, documentID)
	if err != nil {
		return err
	}
	vectors, err := resolveVectors(chunks, staged, existing)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		meta := c.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		batch.Queue(`
INSERT INTO chunks (chunk_id, document_id, ordinal, text, content_hash, embedding, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (chunk_id) DO NOTHING`,
			util.ChunkID(documentID, c.Ordinal, c.ContentHash), documentID, c.Ordinal, c.Text, c.ContentHash, vectors[c.ContentHash], meta)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapWriteErr("insert chunks", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pending_embeddings WHERE run_id=$1`, runID); err != nil {
		return fmt.Errorf("clear staged embeddings: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

// collectVectors loads the run's staged vectors and the vectors of the chunk
// rows about to be replaced, keyed by content hash.
func collectVectors(ctx context.Context, tx pgx.Tx, runID string, documentID int64) (staged, existing map[string]pgvector.Vector, err error) {
	rows, err := tx.Query(ctx, `
SELECT TRUE, content_hash, embedding FROM pending_embeddings WHERE run_id=$1 AND document_id=$2
UNION ALL
SELECT DISTINCT ON (content_hash) FALSE, content_hash, embedding FROM chunks WHERE document_id=$2`, runID, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("collect chunk vectors: %w", err)
	}
	defer rows.Close()
	staged = make(map[string]pgvector.Vector)
	existing = make(map[string]pgvector.Vector)
	for rows.Next() {
		var (
			fromRun bool
			hash    string
			vec     pgvector.Vector
		)
		if err := rows.Scan(&fromRun, &hash, &vec); err != nil {
			return nil, nil, fmt.Errorf("scan chunk vector: %w", err)
		}
		if fromRun {
			staged[hash] = vec
		} else {
			existing[hash] = vec
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate chunk vectors: %w", err)
	}
	return staged, existing, nil
}

// resolveVectors picks a vector for every new chunk: the run's staged vector
// first, then the vector already stored for the same hash. A chunk with
// neither is an error and nothing is returned.
func resolveVectors(chunks []NewChunk, staged, existing map[string]pgvector.Vector) (map[string]pgvector.Vector, error) {
	out := make(map[string]pgvector.Vector, len(chunks))
	for _, c := range chunks {
		if _, done := out[c.ContentHash]; done {
			continue
		}
		if v, ok := staged[c.ContentHash]; ok {
			out[c.ContentHash] = v
			continue
		}
		if v, ok := existing[c.ContentHash]; ok {
			out[c.ContentHash] = v
			continue
		}
		return nil, fmt.Errorf("replace chunks: no embedding for ordinal %d (%s)", c.Ordinal, c.ContentHash)
	}
	return out, nil
}

// DiscardStaged drops a failed run's staged vectors.
func (r *ChunkRepo) DiscardStaged(ctx context.Context, runID string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM pending_embeddings WHERE run_id=$1`, runID); err != nil {
		return fmt.Errorf("discard staged embeddings: %w", err)
	}
	return nil
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, documentID int64) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id=$1`, documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}
