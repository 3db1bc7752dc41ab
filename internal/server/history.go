package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

func (s *Server) handleHistoryConversations(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	page := clampPage(queryInt(r, "page", 1))
	pageSize := clampPageSize(queryInt(r, "page_size", 20))
	if sessionID == "" {
		result, err := s.history.GetAll(r.Context(), userID, page, pageSize)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}
	result, err := s.history.Get(r.Context(), userID, sessionID, page, pageSize)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistorySearch(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "keyword is required")
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	result, err := s.history.Search(r.Context(), userID, keyword, clampPage(page), clampPageSize(pageSize))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type historyDeleteRequest struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	var req historyDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || req.Timestamp.IsZero() {
		writeError(w, http.StatusBadRequest, "session_id and timestamp are required")
		return
	}
	deleted, err := s.history.Delete(r.Context(), userID, req.SessionID, req.Timestamp)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "history record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": req.SessionID})
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func clampPageSize(pageSize int) int {
	if pageSize < 1 {
		return 20
	}
	if pageSize > 100 {
		return 100
	}
	return pageSize
}
