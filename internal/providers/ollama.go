package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"contentflow/internal/retry"
)

// OllamaEmbeddingProvider supports local, free embeddings via Ollama.
// Example model: nomic-embed-text (Nomic Embed v1.5 family).
type OllamaEmbeddingProvider struct {
	alias   string
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaEmbeddingProvider(alias string) *OllamaEmbeddingProvider {
	baseURL := strings.TrimSpace(os.Getenv("CONTENTFLOW_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaEmbeddingProvider{
		alias:   alias,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   resolveOllamaEmbedModel(alias),
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaEmbeddingProvider) info() ProviderInfo {
	return ProviderInfo{Name: "ollama", Model: o.model, Key: o.alias}
}

// Embed uses the batch /api/embed endpoint so a chunk set is one round trip.
func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if len(req.Inputs) == 0 {
		return nil, o.info(), fmt.Errorf("no embedding inputs")
	}
	payload, err := json.Marshal(map[string]any{"model": o.model, "input": req.Inputs})
	if err != nil {
		return nil, o.info(), fmt.Errorf("encode ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, o.info(), fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, o.info(), fmt.Errorf("ollama embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse("ollama", resp); err != nil {
		return nil, o.info(), err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, o.info(), fmt.Errorf("read ollama response: %w", err)
	}
	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, o.info(), fmt.Errorf("decode ollama embedding response: %w", err)
	}
	if len(parsed.Embeddings) != len(req.Inputs) {
		return nil, o.info(), fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(req.Inputs))
	}
	out := make([][]float32, 0, len(parsed.Embeddings))
	for _, e := range parsed.Embeddings {
		if len(e) == 0 {
			return nil, o.info(), fmt.Errorf("ollama returned empty embedding")
		}
		out = append(out, matchDimension(e, req.Dimension))
	}
	return out, o.info(), nil
}

func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		if v := strings.TrimSpace(os.Getenv("CONTENTFLOW_OLLAMA_EMBED_MODEL_" + sanitizeEnvToken(alias))); v != "" {
			return v
		}
		switch strings.ToLower(alias) {
		case "nomic":
			return "nomic-embed-text"
		case "bge":
			return "bge-small-en-v1.5"
		case "mxbai":
			return "mxbai-embed-large"
		}
		// ollama:nomic-embed-text names the model directly.
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	if v := strings.TrimSpace(os.Getenv("CONTENTFLOW_OLLAMA_EMBED_MODEL")); v != "" {
		return v
	}
	return "nomic-embed-text"
}

func sanitizeEnvToken(s string) string {
	return strings.NewReplacer("-", "_", ".", "_", "/", "_", ":", "_").Replace(strings.ToUpper(s))
}

// matchDimension truncates or zero-pads v so every stored vector has the
// column's dimensionality.
func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
