package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"sparkai/pkg/workspace"
)

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, userID int64) {
	switch r.Method {
	case http.MethodPost:
		session, err := s.workspace.CreateSession(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	case http.MethodGet:
		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", 20)
		infos, total, err := s.workspace.ListSessions(r.Context(), page, pageSize)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"total": total, "sessions": infos})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/v1/workspace/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	info, err := s.workspace.SessionInfo(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type sendMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	UseRAG    bool   `json:"use_rag"`
	UseSearch bool   `json:"use_search"`
	TopK      int    `json:"top_k"`
	PromptID  int64  `json:"prompt_id"`
}

func (req sendMessageRequest) toWorkspace() workspace.SendRequest {
	return workspace.SendRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		UseRAG:    req.UseRAG,
		UseSearch: req.UseSearch,
		TopK:      req.TopK,
		PromptID:  req.PromptID,
	}
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	reply, err := s.workspace.SendMessage(r.Context(), userID, req.toWorkspace())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	reply, err := s.workspace.Regenerate(r.Context(), userID, req.toWorkspace())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
