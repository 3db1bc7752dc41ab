package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.

type DocumentModel struct {
	ID         string    `gorm:"primaryKey"`
	UserID     int64     `gorm:"not null;index:idx_documents_user"`
	FileName   string    `gorm:"not null"`
	FileSize   int64     `gorm:"not null"`
	ChunkCount int       `gorm:"not null"`
	UploadedAt time.Time `gorm:"not null;index"`
}

type ChunkModel struct {
	ID         string `gorm:"primaryKey"`
	DocumentID string `gorm:"not null;index"`
	UserID     int64  `gorm:"not null;index"`
	FileName   string `gorm:"not null"`
	ChunkIndex int    `gorm:"not null"`
	Content    string `gorm:"type:text;not null"`
	// Metadata mirrors the filterable fields as one JSON object so search
	// results can return them verbatim.
	Metadata  datatypes.JSON   `gorm:"type:jsonb"`
	Embedding *pgvector.Vector `gorm:"type:vector(1024)"`
	CreatedAt time.Time        `gorm:"not null;index"`
}

type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type PromptModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	UserID    int64  `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	Content   string `gorm:"type:text;not null"`
	Category  string
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }
func (ChunkModel) TableName() string    { return "chunks" }
func (UserModel) TableName() string     { return "users" }
func (PromptModel) TableName() string   { return "prompts" }
