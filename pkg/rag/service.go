package rag

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sparkai/internal/util"
	"sparkai/pkg/ai"
	"sparkai/pkg/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 5

	maxPageSize      = 100
	embedBatchSize   = 25
	embedConcurrency = 4
)

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".docx": true,
	".doc":  true,
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	CreateDocument(doc domain.Document, chunks []domain.Chunk) error
	GetDocument(userID int64, documentID string) (domain.Document, bool, error)
	DeleteDocument(userID int64, documentID string) (bool, error)
	ListDocuments(userID int64, page, pageSize int) (domain.DocumentPage, error)
	SearchChunks(userID int64, embedding []float32, limit int) ([]domain.ScoredChunk, error)
}

// ObjectStore retains the original uploaded files. Optional; failures are
// logged and never fail an upload.
type ObjectStore interface {
	Put(ctx context.Context, key, path, contentType string) error
	Remove(ctx context.Context, key string) error
}

// EventPublisher announces document lifecycle changes. Optional; failures are
// logged and never fail the operation.
type EventPublisher interface {
	DocumentIngested(ctx context.Context, doc domain.Document) error
	DocumentDeleted(ctx context.Context, doc domain.Document) error
}

// ServiceConfig tunes the pipeline. Zero values fall back to defaults.
type ServiceConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	TempDir      string
}

// Service ties extraction, chunking, embedding, and the vector store into the
// document pipeline. Construction succeeds even without an embedder or store;
// operations then fail fast so callers get a clean degraded mode.
type Service struct {
	store    Store
	embedder ai.Embedder
	objects  ObjectStore
	events   EventPublisher
	cfg      ServiceConfig
	now      func() time.Time
}

// NewService builds the pipeline. objects and events may be nil.
func NewService(store Store, embedder ai.Embedder, objects ObjectStore, events EventPublisher, cfg ServiceConfig) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Service{
		store:    store,
		embedder: embedder,
		objects:  objects,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Available reports whether the pipeline can serve requests.
func (s *Service) Available() bool {
	return s != nil && s.store != nil && s.embedder != nil
}

// AllowedExtension reports whether the filename's extension is ingestible.
func AllowedExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Upload ingests one file: extract, chunk, embed, persist. The ledger entry
// and every chunk are written in one store transaction; retaining the
// original file and publishing the event are best-effort.
func (s *Service) Upload(ctx context.Context, userID int64, filename string, content io.Reader) (domain.Document, error) {
	if !s.Available() {
		return domain.Document{}, fmt.Errorf("%w: document pipeline not configured", domain.ErrStoreUnavailable)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ext)
	}

	documentID := uuid.NewString()
	tmp, err := os.CreateTemp(s.cfg.TempDir, "upload-"+documentID+"-*"+ext)
	if err != nil {
		return domain.Document{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("write temp file: %w", err)
	}

	text, err := ExtractText(tmpPath, filename)
	if err != nil {
		return domain.Document{}, err
	}
	parts := SplitText(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(parts) == 0 {
		return domain.Document{}, fmt.Errorf("%w: file produced no chunks", domain.ErrExtraction)
	}

	embeddings, err := s.embedAll(ctx, parts)
	if err != nil {
		return domain.Document{}, err
	}

	now := s.now().UTC()
	chunks := make([]domain.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, domain.Chunk{
			ID:         fmt.Sprintf("%s_%d", documentID, i),
			DocumentID: documentID,
			UserID:     userID,
			FileName:   filename,
			ChunkIndex: i,
			Content:    part,
			Embedding:  embeddings[i],
			CreatedAt:  now,
		})
	}
	doc := domain.Document{
		ID:         documentID,
		UserID:     userID,
		FileName:   filename,
		FileSize:   size,
		ChunkCount: len(chunks),
		UploadedAt: now,
	}
	if err := s.store.CreateDocument(doc, chunks); err != nil {
		return domain.Document{}, fmt.Errorf("persist document: %w", err)
	}

	logger := util.LoggerFromContext(ctx)
	if s.objects != nil {
		if err := s.objects.Put(ctx, objectKey(userID, documentID, filename), tmpPath, contentTypeFor(ext)); err != nil {
			logger.Warn("retain original file failed", "document_id", documentID, "error", err)
		}
	}
	if s.events != nil {
		if err := s.events.DocumentIngested(ctx, doc); err != nil {
			logger.Warn("publish ingest event failed", "document_id", documentID, "error", err)
		}
	}
	return doc, nil
}

// embedAll embeds the chunk texts in fixed-size batches with bounded
// concurrency, keeping results aligned to input order.
func (s *Service) embedAll(ctx context.Context, parts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(parts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(parts) {
			end = len(parts)
		}
		start, end := start, end
		g.Go(func() error {
			out, err := s.embedder.EmbedDocuments(gctx, parts[start:end])
			if err != nil {
				return err
			}
			if len(out) != end-start {
				return fmt.Errorf("%w: embedding count mismatch: got %d, want %d", domain.ErrProvider, len(out), end-start)
			}
			copy(embeddings[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Delete removes one document and its chunks. Returns false when the document
// does not exist or belongs to another user.
func (s *Service) Delete(ctx context.Context, userID int64, documentID string) (bool, error) {
	if s == nil || s.store == nil {
		return false, fmt.Errorf("%w: document pipeline not configured", domain.ErrStoreUnavailable)
	}
	doc, found, err := s.store.GetDocument(userID, documentID)
	if err != nil {
		return false, fmt.Errorf("lookup document: %w", err)
	}
	if !found {
		return false, nil
	}
	deleted, err := s.store.DeleteDocument(userID, documentID)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	if !deleted {
		return false, nil
	}
	logger := util.LoggerFromContext(ctx)
	if s.objects != nil {
		if err := s.objects.Remove(ctx, objectKey(userID, documentID, doc.FileName)); err != nil {
			logger.Warn("remove original file failed", "document_id", documentID, "error", err)
		}
	}
	if s.events != nil {
		if err := s.events.DocumentDeleted(ctx, doc); err != nil {
			logger.Warn("publish delete event failed", "document_id", documentID, "error", err)
		}
	}
	return true, nil
}

// List returns one ledger page. Page defaults to 1, pageSize to 20, capped
// at 100.
func (s *Service) List(ctx context.Context, userID int64, page, pageSize int) (domain.DocumentPage, error) {
	if s == nil || s.store == nil {
		return domain.DocumentPage{}, fmt.Errorf("%w: document pipeline not configured", domain.ErrStoreUnavailable)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return s.store.ListDocuments(userID, page, pageSize)
}

// Search embeds the query and returns the user's topK nearest chunks with
// their raw distances. The store is queried for twice topK, re-filtered by
// owner, then truncated.
func (s *Service) Search(ctx context.Context, userID int64, query string, topK int) ([]domain.SearchResult, error) {
	if !s.Available() {
		return nil, fmt.Errorf("%w: document pipeline not configured", domain.ErrStoreUnavailable)
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	scored, err := s.store.SearchChunks(userID, vec, topK*2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, sc := range scored {
		if sc.UserID != userID {
			continue
		}
		results = append(results, domain.SearchResult{
			Content:  sc.Content,
			Distance: sc.Distance,
			Metadata: map[string]any{
				"chunk_id":    sc.ID,
				"document_id": sc.DocumentID,
				"file_name":   sc.FileName,
				"chunk_index": sc.ChunkIndex,
			},
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

func objectKey(userID int64, documentID, filename string) string {
	return fmt.Sprintf("%d/%s/%s", userID, documentID, filepath.Base(filename))
}

func contentTypeFor(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	default:
		return "application/octet-stream"
	}
}
