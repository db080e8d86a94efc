package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiBatchLimit is the most requests BatchEmbedContents accepts per call.
const geminiBatchLimit = 100

// GeminiProvider embeds inputs through BatchEmbedContents, at most
// geminiBatchLimit per call.
type GeminiProvider struct {
	client    *genai.Client
	modelName string
	alias     string

	// batchEmbed sends one batch. Tests replace it.
	batchEmbed func(ctx context.Context, texts []string) ([][]float32, error)
}

func NewGeminiProvider(ctx context.Context, alias, apiKey, modelName string) (*GeminiProvider, error) {
	if alias != "" {
		if v := os.Getenv("CONTENTFLOW_GEMINI_KEY_" + sanitizeEnvToken(alias)); v != "" {
			apiKey = v
		}
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini key missing for alias %q", alias)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-embedding-001"
	}
	g := &GeminiProvider{client: cl, modelName: modelName, alias: alias}
	g.batchEmbed = g.sendBatch
	return g, nil
}

func (g *GeminiProvider) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: g.modelName, Key: g.alias}
	if len(req.Inputs) == 0 {
		return nil, info, nil
	}
	out := make([][]float32, 0, len(req.Inputs))
	for start := 0; start < len(req.Inputs); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(req.Inputs))
		vecs, err := g.batchEmbed(ctx, req.Inputs[start:end])
		if err != nil {
			return nil, info, fmt.Errorf("gemini batch embed [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, info, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(vecs), end-start)
		}
		for _, v := range vecs {
			out = append(out, matchDimension(v, req.Dimension))
		}
	}
	return out, info, nil
}

func (g *GeminiProvider) sendBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(g.modelName)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}
