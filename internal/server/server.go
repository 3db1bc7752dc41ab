// Package server exposes the HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sparkai/internal/ratelimit"
	"sparkai/internal/util"
	"sparkai/pkg/auth"
	"sparkai/pkg/domain"
	"sparkai/pkg/rag"
	"sparkai/pkg/workspace"
)

// historyStore is the conversation-history surface the handlers need.
type historyStore interface {
	Get(ctx context.Context, userID int64, sessionID string, page, pageSize int) (domain.HistoryPage, error)
	GetAll(ctx context.Context, userID int64, page, pageSize int) (domain.HistoryPage, error)
	Search(ctx context.Context, userID int64, keyword string, page, pageSize int) (domain.HistoryPage, error)
	Delete(ctx context.Context, userID int64, sessionID string, timestamp time.Time) (bool, error)
}

// userStore is the account surface the auth handlers need.
type userStore interface {
	CreateUser(u domain.User) (domain.User, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id int64) (domain.User, bool, error)
}

// promptStore is the prompt-template CRUD surface.
type promptStore interface {
	SavePrompt(p domain.PromptTemplate) (domain.PromptTemplate, error)
	GetPrompt(userID, id int64) (domain.PromptTemplate, bool, error)
	ListPrompts(userID int64) ([]domain.PromptTemplate, error)
	DeletePrompt(userID, id int64) (bool, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	RAG           *rag.Service
	Workspace     *workspace.Service
	History       historyStore
	Users         userStore
	Prompts       promptStore
	Tokens        *auth.TokenManager
	SignupLimiter *ratelimit.FixedWindowLimiter
	LoginLimiter  *ratelimit.FixedWindowLimiter
	UploadLimiter *ratelimit.FixedWindowLimiter

	MaxUploadBytes int64
}

// Server exposes the HTTP endpoints.
type Server struct {
	rag       *rag.Service
	workspace *workspace.Service
	history   historyStore
	users     userStore
	prompts   promptStore
	tokens    *auth.TokenManager

	signupLimiter *ratelimit.FixedWindowLimiter
	loginLimiter  *ratelimit.FixedWindowLimiter
	uploadLimiter *ratelimit.FixedWindowLimiter

	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		rag:            cfg.RAG,
		workspace:      cfg.Workspace,
		history:        cfg.History,
		users:          cfg.Users,
		prompts:        cfg.Prompts,
		tokens:         cfg.Tokens,
		signupLimiter:  cfg.SignupLimiter,
		loginLimiter:   cfg.LoginLimiter,
		uploadLimiter:  cfg.UploadLimiter,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped with the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/v1/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/v1/auth/login", s.handleLogin)
	s.mux.Handle("/api/v1/auth/me", s.withUser(s.handleMe))

	// documents
	s.mux.Handle("/api/v1/rag/upload", s.withUser(s.handleUpload))
	s.mux.Handle("/api/v1/rag/delete", s.withUser(s.handleDeleteDocument))
	s.mux.Handle("/api/v1/rag/list", s.withUser(s.handleListDocuments))
	s.mux.Handle("/api/v1/rag/search", s.withUser(s.handleSearch))

	// history
	s.mux.Handle("/api/v1/history/conversations", s.withUser(s.handleHistoryConversations))
	s.mux.Handle("/api/v1/history/search", s.withUser(s.handleHistorySearch))
	s.mux.Handle("/api/v1/history/delete", s.withUser(s.handleHistoryDelete))

	// workspace
	s.mux.Handle("/api/v1/workspace/sessions", s.withUser(s.handleSessions))
	s.mux.Handle("/api/v1/workspace/sessions/", s.withUser(s.handleSessionByID))
	s.mux.Handle("/api/v1/workspace/messages", s.withUser(s.handleSendMessage))
	s.mux.Handle("/api/v1/workspace/regenerate", s.withUser(s.handleRegenerate))

	// prompt templates
	s.mux.Handle("/api/v1/prompts", s.withUser(s.handlePrompts))
	s.mux.Handle("/api/v1/prompts/", s.withUser(s.handlePromptByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, int64)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil {
			writeError(w, http.StatusInternalServerError, "auth not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// writeDomainError maps the error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrProvider):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
