// Package workspace orchestrates conversations: session lifecycle, context
// assembly from document retrieval and web search, generation, and history
// logging.
package workspace

import (
	"context"
	"fmt"
	"strings"

	"sparkai/internal/util"
	"sparkai/pkg/ai"
	"sparkai/pkg/domain"
)

const (
	defaultSnippetCount = 3

	systemPrompt = "You are a helpful assistant. Answer using the provided context when it is relevant; say so when it is not."
)

// SessionStore is the session surface the workspace needs.
type SessionStore interface {
	Create(ctx context.Context) (domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Append(ctx context.Context, id, role, content string, metadata map[string]string) error
	List(ctx context.Context, page, pageSize int) ([]domain.SessionInfo, int, error)
}

// HistoryStore logs completed exchanges.
type HistoryStore interface {
	Save(ctx context.Context, userID int64, sessionID, message, response string) (domain.HistoryRecord, error)
}

// Retriever answers similarity queries over the user's documents.
type Retriever interface {
	Available() bool
	Search(ctx context.Context, userID int64, query string, topK int) ([]domain.SearchResult, error)
}

// WebSearcher returns web snippets for a query.
type WebSearcher interface {
	Configured() bool
	Search(ctx context.Context, query string, maxResults int) ([]domain.Snippet, error)
}

// PromptStore resolves user prompt templates.
type PromptStore interface {
	GetPrompt(userID, id int64) (domain.PromptTemplate, bool, error)
}

// SendRequest is one user turn.
type SendRequest struct {
	SessionID string
	Message   string
	UseRAG    bool
	UseSearch bool
	TopK      int
	PromptID  int64
}

// Reply is the assistant's answer plus the context that produced it.
type Reply struct {
	SessionID string                `json:"session_id"`
	Answer    string                `json:"answer"`
	Sources   []domain.SearchResult `json:"sources,omitempty"`
	Snippets  []domain.Snippet      `json:"snippets,omitempty"`
}

// Service wires the conversation flow together. retriever, searcher, history,
// and prompts may be nil; the flow degrades feature by feature.
type Service struct {
	sessions  SessionStore
	history   HistoryStore
	retriever Retriever
	searcher  WebSearcher
	prompts   PromptStore
	generator ai.TextGenerator
}

// NewService builds the workspace orchestrator.
func NewService(sessions SessionStore, history HistoryStore, retriever Retriever, searcher WebSearcher, prompts PromptStore, generator ai.TextGenerator) *Service {
	return &Service{
		sessions:  sessions,
		history:   history,
		retriever: retriever,
		searcher:  searcher,
		prompts:   prompts,
		generator: generator,
	}
}

// CreateSession starts a new conversation.
func (s *Service) CreateSession(ctx context.Context) (domain.Session, error) {
	return s.sessions.Create(ctx)
}

// SessionInfo summarizes one session, or reports it missing.
func (s *Service) SessionInfo(ctx context.Context, sessionID string) (domain.SessionInfo, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	if session == nil {
		return domain.SessionInfo{}, domain.ErrSessionNotFound
	}
	info := domain.SessionInfo{
		SessionID:    session.ID,
		CreatedAt:    session.CreatedAt,
		ExpiresAt:    session.ExpiresAt,
		MessageCount: len(session.Messages),
	}
	if n := len(session.Messages); n > 0 {
		ts := session.Messages[n-1].Timestamp
		info.LastMessageTime = &ts
	}
	return info, nil
}

// ListSessions returns one page of live-session summaries.
func (s *Service) ListSessions(ctx context.Context, page, pageSize int) ([]domain.SessionInfo, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return s.sessions.List(ctx, page, pageSize)
}

// SendMessage runs one turn: validate the session, append the user message,
// gather context, generate, append the assistant message, and log history.
// History logging is best-effort and never fails the turn.
func (s *Service) SendMessage(ctx context.Context, userID int64, req SendRequest) (Reply, error) {
	if s.generator == nil {
		return Reply{}, fmt.Errorf("%w: text generator not configured", domain.ErrProvider)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Reply{}, fmt.Errorf("message must not be empty")
	}
	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return Reply{}, err
	}
	if session == nil {
		return Reply{}, domain.ErrSessionNotFound
	}

	if err := s.sessions.Append(ctx, session.ID, "user", message, nil); err != nil {
		return Reply{}, err
	}

	reply, err := s.answer(ctx, userID, session, message, req)
	if err != nil {
		return Reply{}, err
	}

	if err := s.sessions.Append(ctx, session.ID, "assistant", reply.Answer, nil); err != nil {
		return Reply{}, err
	}
	s.logHistory(ctx, userID, session.ID, message, reply.Answer)
	return reply, nil
}

// Regenerate re-answers the session's last user message and appends only the
// new assistant message.
func (s *Service) Regenerate(ctx context.Context, userID int64, req SendRequest) (Reply, error) {
	if s.generator == nil {
		return Reply{}, fmt.Errorf("%w: text generator not configured", domain.ErrProvider)
	}
	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return Reply{}, err
	}
	if session == nil {
		return Reply{}, domain.ErrSessionNotFound
	}
	var lastUser string
	for i := len(session.Messages) - 1; i >= 0; i-- {
		if session.Messages[i].Role == "user" {
			lastUser = session.Messages[i].Content
			break
		}
	}
	if strings.TrimSpace(lastUser) == "" {
		return Reply{}, fmt.Errorf("session has no user message to regenerate")
	}

	reply, err := s.answer(ctx, userID, session, lastUser, req)
	if err != nil {
		return Reply{}, err
	}
	if err := s.sessions.Append(ctx, session.ID, "assistant", reply.Answer, map[string]string{"regenerated": "true"}); err != nil {
		return Reply{}, err
	}
	s.logHistory(ctx, userID, session.ID, lastUser, reply.Answer)
	return reply, nil
}

func (s *Service) answer(ctx context.Context, userID int64, session *domain.Session, message string, req SendRequest) (Reply, error) {
	logger := util.LoggerFromContext(ctx)
	reply := Reply{SessionID: session.ID}

	if req.UseRAG && s.retriever != nil && s.retriever.Available() {
		sources, err := s.retriever.Search(ctx, userID, message, req.TopK)
		if err != nil {
			logger.Warn("document retrieval failed", "session_id", session.ID, "error", err)
		} else {
			reply.Sources = sources
		}
	}
	if req.UseSearch && s.searcher != nil && s.searcher.Configured() {
		snippets, err := s.searcher.Search(ctx, message, defaultSnippetCount)
		if err != nil {
			logger.Warn("web search failed", "session_id", session.ID, "error", err)
		} else {
			reply.Snippets = snippets
		}
	}

	system := systemPrompt
	if req.PromptID > 0 && s.prompts != nil {
		template, ok, err := s.prompts.GetPrompt(userID, req.PromptID)
		if err != nil {
			return Reply{}, err
		}
		if !ok {
			return Reply{}, fmt.Errorf("%w: prompt %d", domain.ErrNotFound, req.PromptID)
		}
		system = template.Content
	}

	answer, err := s.generator.GenerateText(ctx, system, buildUserPrompt(message, session.Messages, reply.Sources, reply.Snippets))
	if err != nil {
		return Reply{}, err
	}
	reply.Answer = strings.TrimSpace(answer)
	return reply, nil
}

func (s *Service) logHistory(ctx context.Context, userID int64, sessionID, message, answer string) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Save(ctx, userID, sessionID, message, answer); err != nil {
		util.LoggerFromContext(ctx).Warn("history save failed", "session_id", sessionID, "error", err)
	}
}

// buildUserPrompt assembles the generation prompt from the conversation so
// far, retrieved document context, and web snippets.
func buildUserPrompt(message string, prior []domain.SessionMessage, sources []domain.SearchResult, snippets []domain.Snippet) string {
	var b strings.Builder
	if len(sources) > 0 {
		b.WriteString("Document context:\n")
		for i, source := range sources {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, source.Content)
		}
		b.WriteString("\n")
	}
	if len(snippets) > 0 {
		b.WriteString("Web results:\n")
		for _, snippet := range snippets {
			fmt.Fprintf(&b, "- %s (%s): %s\n", snippet.Title, snippet.URL, snippet.Content)
		}
		b.WriteString("\n")
	}
	if len(prior) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, msg := range prior {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(message)
	return b.String()
}
