package domain

import "time"

// Document is the ledger entry for one uploaded source file.
type Document struct {
	ID         string    `json:"document_id"`
	UserID     int64     `json:"-"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	ChunkCount int       `json:"chunks_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Chunk is one embedded text segment derived from a document. Document-level
// fields are copied onto every chunk so search results are self-contained.
type Chunk struct {
	ID         string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	UserID     int64     `json:"user_id"`
	FileName   string    `json:"file_name"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredChunk pairs a chunk with its raw vector-store distance.
// Smaller distance means more similar; the scale depends on the index metric.
type ScoredChunk struct {
	Chunk
	Distance float64 `json:"distance"`
}

// SearchResult is the retrieval response shape: verbatim content, raw
// distance, and the chunk's identifying metadata.
type SearchResult struct {
	Content  string         `json:"content"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata"`
}

// DocumentPage is a paginated document listing read from the ledger only.
type DocumentPage struct {
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Items    []Document `json:"items"`
}

// SessionMessage is one entry in a session's ordered message history.
type SessionMessage struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Session is an ephemeral conversation context held in Redis with a TTL.
type Session struct {
	ID        string           `json:"session_id"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Messages  []SessionMessage `json:"messages"`
}

// SessionInfo is the summary view of a session.
type SessionInfo struct {
	SessionID       string     `json:"session_id"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	MessageCount    int        `json:"message_count"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
}

// HistoryRecord is one durable conversation log entry, written once per
// user/assistant exchange and immutable afterwards.
type HistoryRecord struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryPage is a paginated history listing.
type HistoryPage struct {
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Items    []HistoryRecord `json:"items"`
}

// User is an authenticated account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PromptTemplate is a user-owned reusable prompt.
type PromptTemplate struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snippet is one web-search result used to enrich a prompt.
type Snippet struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}
