package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"sparkai/pkg/rag"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.uploadLimiter != nil && !s.uploadLimiter.Allow(strconv.FormatInt(userID, 10)) {
		writeError(w, http.StatusTooManyRequests, "too many uploads")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	filename := strings.TrimSpace(header.Filename)
	if filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if !rag.AllowedExtension(filename) {
		writeError(w, http.StatusBadRequest, "unsupported file format")
		return
	}
	doc, err := s.rag.Upload(r.Context(), userID, filename, file)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

type deleteDocumentRequest struct {
	DocumentID string `json:"document_id"`
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	var req deleteDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	deleted, err := s.rag.Delete(r.Context(), userID, req.DocumentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"document_id": req.DocumentID})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	result, err := s.rag.List(r.Context(), userID, page, pageSize)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	results, err := s.rag.Search(r.Context(), userID, req.Query, req.TopK)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query, "results": results})
}
