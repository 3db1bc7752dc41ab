package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sparkai/pkg/domain"
)

func TestEmbedDocumentsBatchesAndPreservesOrder(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req dashScopeEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := dashScopeEmbedResponse{}
		// Answer out of order to exercise text_index reordering.
		for i := len(req.Input.Texts) - 1; i >= 0; i-- {
			resp.Output.Embeddings = append(resp.Output.Embeddings, struct {
				TextIndex int       `json:"text_index"`
				Embedding []float32 `json:"embedding"`
			}{TextIndex: i, Embedding: []float32{float32(i), 1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder := NewDashScopeEmbedder(NewDashScopeClient(server.URL, "test-key"), "text-embedding-v4")
	texts := []string{"alpha", "beta", "gamma"}
	vectors, err := embedder.EmbedDocuments(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed documents: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one batched call, got %d", calls)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, vec := range vectors {
		if vec[0] != float32(i) {
			t.Fatalf("vector %d out of order: %v", i, vec)
		}
	}
}

func TestEmbedDocumentsEmptyInputSkipsProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("provider should not be called for empty input")
	}))
	defer server.Close()

	embedder := NewDashScopeEmbedder(NewDashScopeClient(server.URL, ""), "text-embedding-v4")
	vectors, err := embedder.EmbedDocuments(context.Background(), nil)
	if err != nil {
		t.Fatalf("embed documents: %v", err)
	}
	if len(vectors) != 0 {
		t.Fatalf("expected empty result, got %d vectors", len(vectors))
	}
}

func TestEmbedQueryPropagatesProviderMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(dashScopeErrorResponse{Code: "InvalidParameter", Message: "model not found"})
	}))
	defer server.Close()

	embedder := NewDashScopeEmbedder(NewDashScopeClient(server.URL, "key"), "bogus-model")
	_, err := embedder.EmbedQuery(context.Background(), "query")
	if err == nil {
		t.Fatalf("expected provider error")
	}
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got: %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "model not found") {
		t.Fatalf("provider message lost: %q", got)
	}
}
