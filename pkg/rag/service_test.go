package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"sparkai/pkg/domain"
)

type fakeStore struct {
	docs []domain.Document

	createdDoc    *domain.Document
	createdChunks []domain.Chunk
	createErr     error

	searchResults []domain.ScoredChunk
	searchLimit   int
	searchErr     error

	deleted   bool
	deleteErr error

	listPage     int
	listPageSize int
}

func (f *fakeStore) CreateDocument(doc domain.Document, chunks []domain.Chunk) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createdDoc = &doc
	f.createdChunks = chunks
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeStore) GetDocument(userID int64, documentID string) (domain.Document, bool, error) {
	for _, doc := range f.docs {
		if doc.UserID == userID && doc.ID == documentID {
			return doc, true, nil
		}
	}
	return domain.Document{}, false, nil
}

func (f *fakeStore) DeleteDocument(userID int64, documentID string) (bool, error) {
	return f.deleted, f.deleteErr
}

func (f *fakeStore) ListDocuments(userID int64, page, pageSize int) (domain.DocumentPage, error) {
	f.listPage = page
	f.listPageSize = pageSize
	items := make([]domain.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		if doc.UserID == userID {
			items = append(items, doc)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UploadedAt.After(items[j].UploadedAt) })
	total := int64(len(items))
	start := (page - 1) * pageSize
	if start > len(items) {
		start = len(items)
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return domain.DocumentPage{Total: total, Page: page, PageSize: pageSize, Items: items[start:end]}, nil
}

func (f *fakeStore) SearchChunks(userID int64, embedding []float32, limit int) ([]domain.ScoredChunk, error) {
	f.searchLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 2}, nil
}

type fakeObjects struct {
	put     []string
	removed []string
}

func (f *fakeObjects) Put(ctx context.Context, key, path, contentType string) error {
	f.put = append(f.put, key)
	return nil
}

func (f *fakeObjects) Remove(ctx context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

type fakeEvents struct {
	ingested []domain.Document
	deleted  []domain.Document
}

func (f *fakeEvents) DocumentIngested(ctx context.Context, doc domain.Document) error {
	f.ingested = append(f.ingested, doc)
	return nil
}

func (f *fakeEvents) DocumentDeleted(ctx context.Context, doc domain.Document) error {
	f.deleted = append(f.deleted, doc)
	return nil
}

func newTestService(store *fakeStore, embedder *fakeEmbedder, t *testing.T) *Service {
	return NewService(store, embedder, nil, nil, ServiceConfig{
		ChunkSize:    100,
		ChunkOverlap: 20,
		TopK:         3,
		TempDir:      t.TempDir(),
	})
}

func TestUploadIngestsTextFile(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	svc := newTestService(store, embedder, t)

	content := strings.Repeat("alpha beta gamma ", 20)
	doc, err := svc.Upload(context.Background(), 7, "notes.txt", strings.NewReader(content))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.ID == "" || doc.UserID != 7 || doc.FileName != "notes.txt" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if store.createdDoc == nil {
		t.Fatalf("document not persisted")
	}
	if doc.ChunkCount != len(store.createdChunks) {
		t.Fatalf("chunk count mismatch: %d vs %d", doc.ChunkCount, len(store.createdChunks))
	}
	for i, chunk := range store.createdChunks {
		if chunk.ID != fmt.Sprintf("%s_%d", doc.ID, i) {
			t.Fatalf("chunk %d has id %q", i, chunk.ID)
		}
		if chunk.UserID != 7 || chunk.DocumentID != doc.ID || chunk.ChunkIndex != i {
			t.Fatalf("chunk %d metadata wrong: %+v", i, chunk)
		}
		if len(chunk.Embedding) == 0 {
			t.Fatalf("chunk %d missing embedding", i)
		}
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeEmbedder{}, t)

	_, err := svc.Upload(context.Background(), 1, "image.png", strings.NewReader("data"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got: %v", err)
	}
	if store.createdDoc != nil {
		t.Fatalf("store must not be touched on rejected upload")
	}
}

func TestUploadFailsFastWhenUnconfigured(t *testing.T) {
	svc := NewService(&fakeStore{}, nil, nil, nil, ServiceConfig{})
	_, err := svc.Upload(context.Background(), 1, "notes.txt", strings.NewReader("data"))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got: %v", err)
	}
}

func TestUploadEmbedderFailureLeavesStoreUntouched(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{err: fmt.Errorf("%w: quota exceeded", domain.ErrProvider)}
	svc := newTestService(store, embedder, t)

	_, err := svc.Upload(context.Background(), 1, "notes.txt", strings.NewReader(strings.Repeat("x", 500)))
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got: %v", err)
	}
	if store.createdDoc != nil {
		t.Fatalf("store must not be touched when embedding fails")
	}
}

func TestSearchOverFetchesFiltersAndTruncates(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 5; i++ {
		owner := int64(7)
		if i == 1 {
			owner = 99
		}
		store.searchResults = append(store.searchResults, domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:         fmt.Sprintf("doc_%d", i),
				DocumentID: "doc",
				UserID:     owner,
				FileName:   "notes.txt",
				ChunkIndex: i,
				Content:    fmt.Sprintf("chunk %d", i),
			},
			Distance: 0.1 * float64(i),
		})
	}
	svc := newTestService(store, &fakeEmbedder{}, t)

	results, err := svc.Search(context.Background(), 7, "query", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if store.searchLimit != 6 {
		t.Fatalf("expected over-fetch of 6, got %d", store.searchLimit)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// Foreign-owner row at index 1 was filtered out.
	if results[1].Metadata["chunk_index"] != 2 {
		t.Fatalf("foreign chunk not filtered: %+v", results[1].Metadata)
	}
	if results[0].Distance != 0 || results[1].Distance != 0.2 {
		t.Fatalf("raw distances not preserved: %+v", results)
	}
}

func TestSearchStoreFailureIsUnavailable(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("connection refused")}
	svc := newTestService(store, &fakeEmbedder{}, t)

	_, err := svc.Search(context.Background(), 1, "query", 3)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got: %v", err)
	}
}

func TestListClampsPagination(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeEmbedder{}, t)

	if _, err := svc.List(context.Background(), 1, 0, 500); err != nil {
		t.Fatalf("list: %v", err)
	}
	if store.listPage != 1 || store.listPageSize != 100 {
		t.Fatalf("expected clamp to page=1 size=100, got page=%d size=%d", store.listPage, store.listPageSize)
	}
}

func TestDeleteReportsMissingDocument(t *testing.T) {
	store := &fakeStore{deleted: false}
	svc := newTestService(store, &fakeEmbedder{}, t)

	deleted, err := svc.Delete(context.Background(), 1, "nope")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Fatalf("expected deleted=false")
	}
}

func TestDeleteRemovesOriginalAndPublishesEvent(t *testing.T) {
	store := &fakeStore{
		docs:    []domain.Document{{ID: "doc-1", UserID: 7, FileName: "notes.txt", ChunkCount: 3}},
		deleted: true,
	}
	objects := &fakeObjects{}
	events := &fakeEvents{}
	svc := NewService(store, &fakeEmbedder{}, objects, events, ServiceConfig{TempDir: t.TempDir()})

	deleted, err := svc.Delete(context.Background(), 7, "doc-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected deleted=true")
	}
	if len(objects.removed) != 1 || objects.removed[0] != "7/doc-1/notes.txt" {
		t.Fatalf("expected exact object key removal, got %v", objects.removed)
	}
	if len(events.deleted) != 1 || events.deleted[0].ID != "doc-1" || events.deleted[0].FileName != "notes.txt" {
		t.Fatalf("expected delete event with document metadata, got %+v", events.deleted)
	}
}

func TestDeleteIsOwnerScoped(t *testing.T) {
	store := &fakeStore{
		docs:    []domain.Document{{ID: "doc-1", UserID: 7, FileName: "notes.txt"}},
		deleted: true,
	}
	objects := &fakeObjects{}
	svc := NewService(store, &fakeEmbedder{}, objects, &fakeEvents{}, ServiceConfig{TempDir: t.TempDir()})

	deleted, err := svc.Delete(context.Background(), 8, "doc-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Fatalf("foreign owner must not delete the document")
	}
	if len(objects.removed) != 0 {
		t.Fatalf("original must be untouched, removed %v", objects.removed)
	}
}

func TestListPagesStitchTogether(t *testing.T) {
	store := &fakeStore{}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.docs = append(store.docs, domain.Document{
			ID:         fmt.Sprintf("doc-%d", i),
			UserID:     7,
			FileName:   fmt.Sprintf("file-%d.txt", i),
			UploadedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	svc := newTestService(store, &fakeEmbedder{}, t)
	ctx := context.Background()

	first, err := svc.List(ctx, 7, 1, 2)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	second, err := svc.List(ctx, 7, 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	wide, err := svc.List(ctx, 7, 1, 4)
	if err != nil {
		t.Fatalf("list wide: %v", err)
	}

	if first.Total != 5 || wide.Total != 5 {
		t.Fatalf("expected total=5 on every page, got %d and %d", first.Total, wide.Total)
	}
	stitched := append(append([]domain.Document{}, first.Items...), second.Items...)
	if len(stitched) != 4 || len(wide.Items) != 4 {
		t.Fatalf("expected 4 stitched and 4 wide items, got %d and %d", len(stitched), len(wide.Items))
	}
	for i := range stitched {
		if stitched[i].ID != wide.Items[i].ID {
			t.Fatalf("page stitching diverged at %d: %q vs %q", i, stitched[i].ID, wide.Items[i].ID)
		}
	}
	if stitched[0].ID != "doc-4" {
		t.Fatalf("expected newest upload first, got %q", stitched[0].ID)
	}
}
