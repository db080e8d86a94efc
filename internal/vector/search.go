package vector

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"contentflow/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

type Query struct {
	UserID       string
	Vector       []float32
	CollectionID string
	// MinSimilarity is exclusive.
	MinSimilarity float64
	Limit         int
}

type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

// SimilarChunks returns the user's chunks closest to the query vector, joined
// to their documents, ordered by similarity descending. Similarity is
// 1 - cosine distance.
func (s *Searcher) SimilarChunks(ctx context.Context, q Query) ([]models.ChunkMatch, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	args := []any{q.UserID, pgvector.NewVector(q.Vector), q.MinSimilarity, q.Limit}
	filterSQL := ""
	if q.CollectionID != "" {
		// Collections are referenced by id or by name, as when linking.
		filterSQL = `
  AND EXISTS (
    SELECT 1 FROM document_collections dc
    JOIN collections col ON col.id = dc.collection_id
    WHERE dc.document_id = d.id AND col.user_id = $1 AND (col.id::text = $5 OR col.name = $5))`
		args = append(args, q.CollectionID)
	}

	query := `
SELECT d.id,
       d.uuid::text,
       d.type,
       COALESCE(d.url, ''),
       COALESCE(d.title, ''),
       COALESCE(d.description, ''),
       COALESCE(d.preview_image, ''),
       c.chunk_id,
       c.ordinal,
       c.text,
       1 - (c.embedding <=> $2) AS similarity
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.user_id = $1
  AND 1 - (c.embedding <=> $2) > $3` + filterSQL + `
ORDER BY c.embedding <=> $2
LIMIT $4`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ChunkMatch, 0, q.Limit)
	for rows.Next() {
		var m models.ChunkMatch
		if err := rows.Scan(&m.DocumentID, &m.DocumentUUID, &m.Type, &m.URL, &m.Title, &m.Description,
			&m.PreviewImage, &m.ChunkID, &m.Ordinal, &m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk match: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	orderMatches(results)
	return results, nil
}

// orderMatches sorts by similarity descending and breaks ties by chunk id.
// The query orders by distance alone so the HNSW index can serve it.
func orderMatches(ms []models.ChunkMatch) {
	slices.SortStableFunc(ms, func(a, b models.ChunkMatch) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return strings.Compare(a.ChunkID, b.ChunkID)
	})
}
