// Package search wraps the Tavily web-search API, treated by the rest of the
// system as an opaque snippet source.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sparkai/pkg/domain"
)

const defaultTavilyEndpoint = "https://api.tavily.com/search"

// TavilyClient calls the Tavily Search API.
type TavilyClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewTavilyClient builds a search client. An empty endpoint uses the public
// Tavily API.
func NewTavilyClient(endpoint, apiKey string) *TavilyClient {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = defaultTavilyEndpoint
	}
	return &TavilyClient{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (c *TavilyClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Search returns up to maxResults snippets for the query.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]domain.Snippet, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: tavily api key not configured", domain.ErrProvider)
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	body, err := json.Marshal(tavilyRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "advanced",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tavily api error: %s", domain.ErrProvider, resp.Status)
	}
	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProvider, err)
	}
	snippets := make([]domain.Snippet, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		snippets = append(snippets, domain.Snippet{
			Title:   item.Title,
			URL:     item.URL,
			Content: item.Content,
		})
	}
	return snippets, nil
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}
