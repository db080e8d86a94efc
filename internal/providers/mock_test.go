package providers

import (
	"context"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestMockEmbedIsDeterministicAndUnitLength(t *testing.T) {
	p := NewMockProvider(64)
	req := EmbedRequest{Inputs: []string{"Postgres vector search", "postgres VECTOR search!"}}
	a, _, err := p.Embed(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, _, _ := p.Embed(context.Background(), req)
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("not deterministic at %d", i)
		}
	}
	if n := dot(a[0], a[0]); n < 0.999 || n > 1.001 {
		t.Fatalf("expected unit vector, norm^2=%f", n)
	}
	if s := dot(a[0], a[1]); s < 0.999 {
		t.Fatalf("case and punctuation should not matter, similarity=%f", s)
	}
}

func TestMockEmbedSharedWordsAreCloser(t *testing.T) {
	p := NewMockProvider(256)
	vecs, _, _ := p.Embed(context.Background(), EmbedRequest{Inputs: []string{
		"temporal workflow retries activities",
		"workflow activities retry with temporal",
		"banana bread recipe with walnuts",
	}})
	if dot(vecs[0], vecs[1]) <= dot(vecs[0], vecs[2]) {
		t.Fatalf("related texts should score higher")
	}
}

func TestManagerPreferredOrderSkipsMockWhenRealProvidersExist(t *testing.T) {
	m := NewStaticManager(8,
		NamedEmbedProvider{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(8)},
		NamedEmbedProvider{Ref: ProviderRef{Raw: "openai:a", Name: "openai", KeyAlias: "a"}, Provider: NewMockProvider(8)},
		NamedEmbedProvider{Ref: ProviderRef{Raw: "gemini", Name: "gemini"}, Provider: NewMockProvider(8)},
	)
	order := m.PreferredEmbedOrder()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected order %v", order)
	}
	refs := m.EmbedProviderRefs()
	for _, r := range refs {
		if r == "mock" {
			t.Fatalf("mock should not rotate with real providers: %v", refs)
		}
	}
	if m.Dimension() != 8 {
		t.Fatalf("unexpected dimension %d", m.Dimension())
	}
}

func TestManagerPreferredOrderKeepsMockWhenAlone(t *testing.T) {
	m := NewStaticManager(8,
		NamedEmbedProvider{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(8)},
	)
	order := m.PreferredEmbedOrder()
	if len(order) != 1 || order[0] != 0 {
		t.Fatalf("unexpected order %v", order)
	}

	empty := NewStaticManager(8)
	if got := empty.EmbedProviderRefs(); len(got) != 1 || got[0] != "mock" {
		t.Fatalf("empty manager should fall back to mock, got %v", got)
	}
}
