// Package embedding turns batches of chunk texts into vectors. It knows
// nothing about chunk identity: output i always belongs to input i.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"contentflow/internal/providers"
	"contentflow/internal/retry"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Providers is the slice of providers.Manager the generator needs.
type Providers interface {
	Dimension() int
	PreferredEmbedOrder() []int
	EmbedProviderByIndex(i int) (providers.EmbeddingProvider, providers.ProviderRef)
}

type Generator struct {
	providers Providers
	dim       int
	policy    retry.Policy
	logger    *slog.Logger
}

// NewGenerator checks every vector against p.Dimension(), the width the
// schema was bootstrapped with.
func NewGenerator(p Providers, policy retry.Policy, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{providers: p, dim: p.Dimension(), policy: policy, logger: logger}
}

// Result carries the vectors plus the provider that produced them.
type Result struct {
	Vectors  [][]float32
	Provider providers.ProviderInfo
	Attempts int
}

// Generate embeds texts in a single provider call per attempt. Attempts
// rotate through the preferred provider order. Exhausting the policy is
// returned as an error and nothing is partially returned.
func (g *Generator) Generate(ctx context.Context, operation string, texts []string) (Result, error) {
	if len(texts) == 0 {
		return Result{}, nil
	}
	order := g.providers.PreferredEmbedOrder()
	if len(order) == 0 {
		order = []int{0}
	}

	var res Result
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		idx := order[res.Attempts%len(order)]
		res.Attempts++
		p, ref := g.providers.EmbedProviderByIndex(idx)

		vectors, info, err := p.Embed(ctx, providers.EmbedRequest{Operation: operation, Inputs: texts, Dimension: g.dim})
		if err != nil {
			kind := providers.ClassifyError(err)
			g.logger.Warn("embedding attempt failed",
				"provider", ref.String(), "attempt", res.Attempts, "inputs", len(texts), "error_type", string(kind), "error", err)
			if !kind.Rotatable() {
				return retry.Permanent(fmt.Errorf("embed with %s: %w", ref, err))
			}
			return fmt.Errorf("embed with %s: %w", ref, err)
		}
		if err := g.check(vectors, len(texts)); err != nil {
			return fmt.Errorf("embed with %s: %w", ref, err)
		}
		res.Vectors = vectors
		res.Provider = info
		return nil
	})
	if err != nil {
		return Result{Attempts: res.Attempts}, err
	}
	return res, nil
}

// Single embeds one text, used for queries.
func (g *Generator) Single(ctx context.Context, operation, text string) ([]float32, error) {
	res, err := g.Generate(ctx, operation, []string{text})
	if err != nil {
		return nil, err
	}
	if len(res.Vectors) == 0 {
		return nil, fmt.Errorf("embed %s: empty text", operation)
	}
	return res.Vectors[0], nil
}

func (g *Generator) check(vectors [][]float32, n int) error {
	if len(vectors) != n {
		return fmt.Errorf("got %d vectors for %d inputs", len(vectors), n)
	}
	if g.dim <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != g.dim {
			return fmt.Errorf("vector %d has %d dimensions, want %d: %w", i, len(v), g.dim, ErrDimensionMismatch)
		}
	}
	return nil
}
