package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sparkai/pkg/domain"
)

func TestSearchParsesSnippets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "go generics" {
			t.Fatalf("unexpected query: %q", req.Query)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "Go Blog", "url": "https://go.dev/blog", "content": "generics landed in 1.18"},
			},
		})
	}))
	defer server.Close()

	client := NewTavilyClient(server.URL, "test-key")
	snippets, err := client.Search(context.Background(), "go generics", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(snippets) != 1 || snippets[0].Title != "Go Blog" {
		t.Fatalf("unexpected snippets: %+v", snippets)
	}
}

func TestSearchWithoutKeyFailsFast(t *testing.T) {
	client := NewTavilyClient("", "")
	if client.Configured() {
		t.Fatalf("expected unconfigured client")
	}
	if _, err := client.Search(context.Background(), "anything", 5); !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got: %v", err)
	}
}

func TestSearchNonOKStatusIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewTavilyClient(server.URL, "key")
	if _, err := client.Search(context.Background(), "anything", 5); !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got: %v", err)
	}
}
