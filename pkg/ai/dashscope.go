package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"sparkai/pkg/domain"
)

const (
	defaultDashScopeBaseURL = "https://dashscope.aliyuncs.com"
	embeddingPath           = "/api/v1/services/embeddings/text-embedding/text-embedding"

	// The embedding API caps the number of texts per request.
	maxEmbeddingBatch = 25
)

// DashScopeClient calls the DashScope HTTP API.
type DashScopeClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewDashScopeClient constructs a client with the provided base URL and key.
func NewDashScopeClient(baseURL, apiKey string) *DashScopeClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultDashScopeBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &DashScopeClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// DashScopeEmbedder wraps DashScope embedding calls with a fixed model.
type DashScopeEmbedder struct {
	client *DashScopeClient
	model  string
}

// NewDashScopeEmbedder builds a DashScope-based embedder.
func NewDashScopeEmbedder(client *DashScopeClient, model string) *DashScopeEmbedder {
	return &DashScopeEmbedder{client: client, model: model}
}

// EmbedDocuments returns embeddings for the given texts, batching requests up
// to the provider's per-call limit. Empty input returns an empty slice
// without calling the provider.
func (e *DashScopeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := start + maxEmbeddingBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.client.embed(ctx, e.model, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: embedding count mismatch: got %d, want %d", domain.ErrProvider, len(out), len(texts))
	}
	return out, nil
}

// EmbedQuery returns the embedding for a single query text.
func (e *DashScopeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.embed(ctx, e.model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: embedding response missing embeddings", domain.ErrProvider)
	}
	return vectors[0], nil
}

func (c *DashScopeClient) embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("embedding model required")
	}
	reqBody := dashScopeEmbedRequest{Model: model}
	reqBody.Input.Texts = texts

	var resp dashScopeEmbedResponse
	if err := c.doJSON(ctx, embeddingPath, reqBody, &resp); err != nil {
		return nil, err
	}
	items := resp.Output.Embeddings
	if len(items) != len(texts) {
		return nil, fmt.Errorf("%w: embedding count mismatch: got %d, want %d", domain.ErrProvider, len(items), len(texts))
	}
	// The provider may return items out of order; text_index restores it.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].TextIndex < items[j].TextIndex
	})
	vectors := make([][]float32, 0, len(items))
	for _, item := range items {
		vectors = append(vectors, item.Embedding)
	}
	return vectors, nil
}

func (c *DashScopeClient) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp dashScopeErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Message != "" {
			return fmt.Errorf("%w: dashscope api error: %s", domain.ErrProvider, errResp.Message)
		}
		return fmt.Errorf("%w: dashscope api error: %s", domain.ErrProvider, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrProvider, err)
	}
	return nil
}

type dashScopeEmbedRequest struct {
	Model string `json:"model"`
	Input struct {
		Texts []string `json:"texts"`
	} `json:"input"`
}

type dashScopeEmbedResponse struct {
	Output struct {
		Embeddings []struct {
			TextIndex int       `json:"text_index"`
			Embedding []float32 `json:"embedding"`
		} `json:"embeddings"`
	} `json:"output"`
	RequestID string `json:"request_id"`
}

type dashScopeErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
