package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"sparkai/pkg/domain"
)

const migrateLockID int64 = 52415241

const defaultEmbeddingDim = 1024

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the embedding dimension enforced by the chunk index.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore persists the document ledger, the pgvector chunk index, users,
// and prompt templates in one Postgres database, so document creation and
// deletion are transactional across ledger and chunks.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim := opts.EmbeddingDim
	if embeddingDim <= 0 {
		embeddingDim = defaultEmbeddingDim
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&UserModel{}, &DocumentModel{}, &ChunkModel{}, &PromptModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'chunks' AND column_name = 'embedding'
			) THEN
				ALTER TABLE chunks ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM chunks c
				WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.id = c.document_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chunks'
					AND constraint_name = 'chunks_document_id_fkey'
				) THEN
					ALTER TABLE chunks
					ADD CONSTRAINT chunks_document_id_fkey
					FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure document foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateDocument writes the ledger entry and all chunk rows in one
// transaction, so a failure leaves neither behind.
func (s *GormStore) CreateDocument(doc domain.Document, chunks []domain.Chunk) error {
	for _, chunk := range chunks {
		if err := s.validateEmbeddingDim(chunk.Embedding); err != nil {
			return fmt.Errorf("chunk %d: %w", chunk.ChunkIndex, err)
		}
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := documentToModel(doc)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		models := make([]ChunkModel, 0, len(chunks))
		for _, chunk := range chunks {
			models = append(models, chunkToModel(chunk))
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// DeleteDocument removes the ledger entry and its chunks. Returns false when
// the document does not exist or belongs to another user.
func (s *GormStore) DeleteDocument(userID int64, documentID string) (bool, error) {
	var deleted bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChunkModel{}, "user_id = ? AND document_id = ?", userID, documentID).Error; err != nil {
			return err
		}
		res := tx.Delete(&DocumentModel{}, "user_id = ? AND id = ?", userID, documentID)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

// GetDocument retrieves one ledger entry scoped to its owner.
func (s *GormStore) GetDocument(userID int64, documentID string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "user_id = ? AND id = ?", userID, documentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocuments returns one ledger page, newest uploads first.
func (s *GormStore) ListDocuments(userID int64, page, pageSize int) (domain.DocumentPage, error) {
	var total int64
	if err := s.db.Model(&DocumentModel{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return domain.DocumentPage{}, err
	}
	var models []DocumentModel
	if err := s.db.Where("user_id = ?", userID).
		Order("uploaded_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error; err != nil {
		return domain.DocumentPage{}, err
	}
	items := make([]domain.Document, 0, len(models))
	for _, m := range models {
		items = append(items, documentFromModel(m))
	}
	return domain.DocumentPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// SearchChunks finds the user's nearest chunks by cosine distance. The raw
// distance is returned alongside each chunk.
func (s *GormStore) SearchChunks(userID int64, embedding []float32, limit int) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	var rows []scoredChunkRow
	if err := s.db.Model(&ChunkModel{}).
		Select("*, (embedding <=> ?) AS distance", vec).
		Where("user_id = ? AND embedding IS NOT NULL", userID).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	scored := make([]domain.ScoredChunk, 0, len(rows))
	for _, row := range rows {
		scored = append(scored, domain.ScoredChunk{
			Chunk:    chunkFromModel(row.ChunkModel),
			Distance: row.Distance,
		})
	}
	return scored, nil
}

type scoredChunkRow struct {
	ChunkModel
	Distance float64
}

// CreateUser registers a user and returns it with the assigned ID.
func (s *GormStore) CreateUser(u domain.User) (domain.User, error) {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SavePrompt creates or updates a prompt template scoped to its owner.
func (s *GormStore) SavePrompt(p domain.PromptTemplate) (domain.PromptTemplate, error) {
	model := promptToModel(p)
	if model.ID == 0 {
		if err := s.db.Create(&model).Error; err != nil {
			return domain.PromptTemplate{}, err
		}
		return promptFromModel(model), nil
	}
	res := s.db.Model(&PromptModel{}).
		Where("user_id = ? AND id = ?", model.UserID, model.ID).
		Updates(map[string]any{
			"name":       model.Name,
			"content":    model.Content,
			"category":   model.Category,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.PromptTemplate{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.PromptTemplate{}, domain.ErrNotFound
	}
	return s.mustGetPrompt(model.UserID, model.ID)
}

func (s *GormStore) mustGetPrompt(userID, id int64) (domain.PromptTemplate, error) {
	p, ok, err := s.GetPrompt(userID, id)
	if err != nil {
		return domain.PromptTemplate{}, err
	}
	if !ok {
		return domain.PromptTemplate{}, domain.ErrNotFound
	}
	return p, nil
}

// GetPrompt retrieves one prompt template.
func (s *GormStore) GetPrompt(userID, id int64) (domain.PromptTemplate, bool, error) {
	var model PromptModel
	if err := s.db.First(&model, "user_id = ? AND id = ?", userID, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.PromptTemplate{}, false, nil
		}
		return domain.PromptTemplate{}, false, err
	}
	return promptFromModel(model), true, nil
}

// ListPrompts returns the user's prompt templates, newest first.
func (s *GormStore) ListPrompts(userID int64) ([]domain.PromptTemplate, error) {
	var models []PromptModel
	if err := s.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.PromptTemplate, 0, len(models))
	for _, m := range models {
		items = append(items, promptFromModel(m))
	}
	return items, nil
}

// DeletePrompt removes one prompt template. Returns false when absent.
func (s *GormStore) DeletePrompt(userID, id int64) (bool, error) {
	res := s.db.Delete(&PromptModel{}, "user_id = ? AND id = ?", userID, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) validateEmbeddingDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.embeddingDim)
	}
	return nil
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:         d.ID,
		UserID:     d.UserID,
		FileName:   d.FileName,
		FileSize:   d.FileSize,
		ChunkCount: d.ChunkCount,
		UploadedAt: d.UploadedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:         m.ID,
		UserID:     m.UserID,
		FileName:   m.FileName,
		FileSize:   m.FileSize,
		ChunkCount: m.ChunkCount,
		UploadedAt: m.UploadedAt,
	}
}

func chunkToModel(chunk domain.Chunk) ChunkModel {
	meta, _ := json.Marshal(map[string]any{
		"document_id": chunk.DocumentID,
		"user_id":     chunk.UserID,
		"file_name":   chunk.FileName,
		"chunk_index": chunk.ChunkIndex,
	})
	model := ChunkModel{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		UserID:     chunk.UserID,
		FileName:   chunk.FileName,
		ChunkIndex: chunk.ChunkIndex,
		Content:    chunk.Content,
		Metadata:   meta,
		CreatedAt:  chunk.CreatedAt,
	}
	if len(chunk.Embedding) > 0 {
		vec := pgvector.NewVector(chunk.Embedding)
		model.Embedding = &vec
	}
	return model
}

func chunkFromModel(model ChunkModel) domain.Chunk {
	chunk := domain.Chunk{
		ID:         model.ID,
		DocumentID: model.DocumentID,
		UserID:     model.UserID,
		FileName:   model.FileName,
		ChunkIndex: model.ChunkIndex,
		Content:    model.Content,
		CreatedAt:  model.CreatedAt,
	}
	if model.Embedding != nil {
		chunk.Embedding = model.Embedding.Slice()
	}
	return chunk
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func promptToModel(p domain.PromptTemplate) PromptModel {
	return PromptModel{
		ID:        p.ID,
		UserID:    p.UserID,
		Name:      p.Name,
		Content:   p.Content,
		Category:  p.Category,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func promptFromModel(m PromptModel) domain.PromptTemplate {
	return domain.PromptTemplate{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		Content:   m.Content,
		Category:  m.Category,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
