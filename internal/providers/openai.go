package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"contentflow/internal/retry"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls the embeddings endpoint of any OpenAI-compatible API.
type OpenAIProvider struct {
	keyName string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	baseURL := strings.TrimSpace(os.Getenv("CONTENTFLOW_OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := strings.TrimSpace(os.Getenv("CONTENTFLOW_OPENAI_EMBED_MODEL"))
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		keyName: keyName,
		apiKey:  resolveOpenAIKey(keyName),
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAIProvider) info() ProviderInfo {
	return ProviderInfo{Name: "openai", Model: o.model, Key: o.keyName}
}

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if o.apiKey == "" {
		return nil, o.info(), fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	if len(req.Inputs) == 0 {
		return nil, o.info(), nil
	}
	body := map[string]any{"model": o.model, "input": req.Inputs}
	if req.Dimension > 0 && strings.HasPrefix(o.model, "text-embedding-3") {
		body["dimensions"] = req.Dimension
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, o.info(), fmt.Errorf("encode openai request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, o.info(), fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, o.info(), fmt.Errorf("openai embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse("openai", resp); err != nil {
		return nil, o.info(), err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, o.info(), fmt.Errorf("read openai response: %w", err)
	}
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, o.info(), fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(req.Inputs) {
		return nil, o.info(), fmt.Errorf("openai returned %d embeddings for %d inputs", len(parsed.Data), len(req.Inputs))
	}
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, matchDimension(d.Embedding, req.Dimension))
	}
	return out, o.info(), nil
}

func resolveOpenAIKey(alias string) string {
	if alias != "" {
		if k := os.Getenv("CONTENTFLOW_OPENAI_KEY_" + sanitizeEnvToken(alias)); k != "" {
			return k
		}
	}
	return os.Getenv("OPENAI_API_KEY")
}
