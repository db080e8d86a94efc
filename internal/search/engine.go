// Package search ranks a user's chunks against a query.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"contentflow/internal/config"
	"contentflow/internal/models"
	"contentflow/internal/util"
	"contentflow/internal/vector"
)

const snippetRunes = 280

// Reduction decides which rows survive when several chunks of one document match.
type Reduction string

const (
	// BestChunk keeps the highest-similarity chunk of each document.
	BestChunk Reduction = "best_chunk"
	// FirstSeen keeps rows in arrival order and drops any later row sharing a
	// document, identical content, or identical URL with a kept row.
	FirstSeen Reduction = "first_seen"
)

func ParseReduction(s string) (Reduction, error) {
	switch Reduction(strings.ToLower(strings.TrimSpace(s))) {
	case "", BestChunk:
		return BestChunk, nil
	case FirstSeen:
		return FirstSeen, nil
	}
	return "", fmt.Errorf("unknown search reduction %q", s)
}

type ChunkSearcher interface {
	SimilarChunks(ctx context.Context, q vector.Query) ([]models.ChunkMatch, error)
}

type QueryEmbedder interface {
	Single(ctx context.Context, operation, text string) ([]float32, error)
}

type Engine struct {
	chunks    ChunkSearcher
	embedder  QueryEmbedder
	cfg       config.RankingConfig
	reduction Reduction
}

func NewEngine(chunks ChunkSearcher, embedder QueryEmbedder, cfg config.RankingConfig) (*Engine, error) {
	red, err := ParseReduction(cfg.Reduction)
	if err != nil {
		return nil, err
	}
	return &Engine{chunks: chunks, embedder: embedder, cfg: cfg, reduction: red}, nil
}

type Request struct {
	Query        string   `json:"query"`
	Threshold    *float64 `json:"threshold,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	CollectionID string   `json:"collection,omitempty"`
}

type Result struct {
	models.ChunkMatch
	Snippet    string   `json:"snippet"`
	Normalized *float64 `json:"normalized_similarity,omitempty"`
}

// Search is the direct search path: raw similarity above the threshold,
// one row per document, ordered by similarity, truncated to Limit.
func (e *Engine) Search(ctx context.Context, userID string, req Request) ([]Result, error) {
	threshold := 0.0
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	matches, err := e.candidates(ctx, userID, req.Query, req.CollectionID, threshold)
	if err != nil {
		return nil, err
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		out = append(out, Result{ChunkMatch: m, Snippet: util.Snippet(m.Content, req.Query, snippetRunes)})
	}
	return out, nil
}

// RelatedContext is the conversational path: candidates above the context
// floor are min-max normalized and the highlighted set is returned.
func (e *Engine) RelatedContext(ctx context.Context, userID, query, collectionID string) ([]Result, error) {
	matches, err := e.candidates(ctx, userID, query, collectionID, e.cfg.ContextFloor)
	if err != nil {
		return nil, err
	}
	selected := SelectHighlighted(matches, e.cfg.HighlightThreshold, e.cfg.MinHighlighted)
	for i := range selected {
		selected[i].Snippet = util.Snippet(selected[i].Content, query, snippetRunes)
	}
	return selected, nil
}

func (e *Engine) candidates(ctx context.Context, userID, query, collectionID string, threshold float64) ([]models.ChunkMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	vec, err := e.embedder.Single(ctx, "search", query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	rows, err := e.chunks.SimilarChunks(ctx, vector.Query{
		UserID:        userID,
		Vector:        vec,
		CollectionID:  collectionID,
		MinSimilarity: threshold,
		Limit:         e.cfg.CandidateLimit,
	})
	if err != nil {
		return nil, err
	}
	kept := make([]models.ChunkMatch, 0, len(rows))
	for _, r := range rows {
		if r.Similarity > threshold {
			kept = append(kept, r)
		}
	}
	if e.cfg.CandidateLimit > 0 && len(kept) > e.cfg.CandidateLimit {
		kept = kept[:e.cfg.CandidateLimit]
	}
	reduced := Reduce(kept, e.reduction)
	sortBySimilarity(reduced)
	return reduced, nil
}

// Reduce leaves at most one row per document.
func Reduce(rows []models.ChunkMatch, mode Reduction) []models.ChunkMatch {
	out := make([]models.ChunkMatch, 0, len(rows))
	switch mode {
	case FirstSeen:
		for _, r := range rows {
			dup := false
			for _, k := range out {
				if k.DocumentID == r.DocumentID || k.Content == r.Content || (r.URL != "" && k.URL == r.URL) {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, r)
			}
		}
	default:
		pos := make(map[int64]int, len(rows))
		for _, r := range rows {
			i, ok := pos[r.DocumentID]
			if !ok {
				pos[r.DocumentID] = len(out)
				out = append(out, r)
				continue
			}
			if r.Similarity > out[i].Similarity {
				out[i] = r
			}
		}
	}
	return out
}

func sortBySimilarity(rows []models.ChunkMatch) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Similarity > rows[j].Similarity })
}

// Normalize min-max scales similarities to [0,1]. Equal similarities all map to 1.
func Normalize(rows []models.ChunkMatch) []float64 {
	out := make([]float64, len(rows))
	if len(rows) == 0 {
		return out
	}
	lo, hi := rows[0].Similarity, rows[0].Similarity
	for _, r := range rows[1:] {
		lo = min(lo, r.Similarity)
		hi = max(hi, r.Similarity)
	}
	for i, r := range rows {
		if hi == lo {
			out[i] = 1
			continue
		}
		out[i] = (r.Similarity - lo) / (hi - lo)
	}
	return out
}

// SelectHighlighted returns every row whose normalized similarity is above
// threshold, or the top minCount rows, whichever set is larger. Rows must be
// ordered by similarity descending.
func SelectHighlighted(rows []models.ChunkMatch, threshold float64, minCount int) []Result {
	norm := Normalize(rows)
	above := 0
	for _, n := range norm {
		if n > threshold {
			above++
		}
	}
	take := max(above, min(minCount, len(rows)))
	out := make([]Result, 0, take)
	for i := 0; i < len(rows) && len(out) < take; i++ {
		n := norm[i]
		out = append(out, Result{ChunkMatch: rows[i], Normalized: &n})
	}
	return out
}
