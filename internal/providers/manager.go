package providers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"contentflow/internal/config"
)

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager holds the configured embedding providers in failover order.
type Manager struct {
	embedProviders []NamedEmbedProvider
	dim            int
}

func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	m := &Manager{dim: cfg.EmbedDim}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ctx, ref, cfg)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: p})
	}
	return m, nil
}

// NewStaticManager wraps already-built providers.
func NewStaticManager(dim int, named ...NamedEmbedProvider) *Manager {
	return &Manager{embedProviders: named, dim: dim}
}

func (m *Manager) Dimension() int {
	return m.dim
}

func (m *Manager) EmbedProviderByIndex(i int) (EmbeddingProvider, ProviderRef) {
	if len(m.embedProviders) == 0 {
		return NewMockProvider(m.dim), ProviderRef{Raw: "mock", Name: "mock"}
	}
	if i < 0 || i >= len(m.embedProviders) {
		i = 0
	}
	return m.embedProviders[i].Provider, m.embedProviders[i].Ref
}

// PreferredEmbedOrder lists providers in configured order. Mock providers
// only take part when nothing else is configured, so a failing real
// provider never falls back to fake vectors in the live index.
func (m *Manager) PreferredEmbedOrder() []int {
	n := len(m.embedProviders)
	if n == 0 {
		return []int{0}
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if m.embedProviders[i].Ref.Name != "mock" {
			out = append(out, i)
		}
	}
	if len(out) > 0 {
		return out
	}
	for i := 0; i < n; i++ {
		out = append(out, i)
	}
	return out
}

// EmbedProviderRefs returns the providers PreferredEmbedOrder rotates through.
func (m *Manager) EmbedProviderRefs() []string {
	order := m.PreferredEmbedOrder()
	out := make([]string, 0, len(order))
	for _, i := range order {
		_, ref := m.EmbedProviderByIndex(i)
		out = append(out, ref.String())
	}
	return out
}

func (m *Manager) Close() error {
	var errs []error
	for _, p := range m.embedProviders {
		if c, ok := p.Provider.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func buildProvider(ctx context.Context, ref ProviderRef, cfg config.Config) (EmbeddingProvider, error) {
	switch ref.Name {
	case "mock":
		return NewMockProvider(cfg.EmbedDim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias), nil
	case "gemini":
		return NewGeminiProvider(ctx, ref.KeyAlias, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
