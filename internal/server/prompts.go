package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sparkai/pkg/domain"
)

type promptRequest struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request, userID int64) {
	switch r.Method {
	case http.MethodGet:
		prompts, err := s.prompts.ListPrompts(userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
	case http.MethodPost:
		var req promptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Content) == "" {
			writeError(w, http.StatusBadRequest, "name and content are required")
			return
		}
		now := time.Now().UTC()
		prompt, err := s.prompts.SavePrompt(domain.PromptTemplate{
			UserID:    userID,
			Name:      strings.TrimSpace(req.Name),
			Content:   req.Content,
			Category:  strings.TrimSpace(req.Category),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, prompt)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePromptByID(w http.ResponseWriter, r *http.Request, userID int64) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/prompts/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "prompt not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		prompt, ok, err := s.prompts.GetPrompt(userID, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "prompt not found")
			return
		}
		writeJSON(w, http.StatusOK, prompt)
	case http.MethodPut:
		var req promptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Content) == "" {
			writeError(w, http.StatusBadRequest, "name and content are required")
			return
		}
		prompt, err := s.prompts.SavePrompt(domain.PromptTemplate{
			ID:       id,
			UserID:   userID,
			Name:     strings.TrimSpace(req.Name),
			Content:  req.Content,
			Category: strings.TrimSpace(req.Category),
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, prompt)
	case http.MethodDelete:
		deleted, err := s.prompts.DeletePrompt(userID, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "prompt not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"id": id})
	default:
		methodNotAllowed(w)
	}
}
