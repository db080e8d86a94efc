package api

import (
	"fmt"
	"net/http"
	"strings"

	"contentflow/internal/search"
)

type contextRequest struct {
	Query        string `json:"query"`
	CollectionID string `json:"collection,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("query is required: %w", errBadRequest))
		return
	}
	if req.Threshold != nil && (*req.Threshold < -1 || *req.Threshold > 1) {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("threshold must be within [-1, 1]: %w", errBadRequest))
		return
	}
	if req.Limit < 0 {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("limit must not be negative: %w", errBadRequest))
		return
	}
	results, err := s.deps.Search.Search(r.Context(), userFrom(r.Context()), req)
	if err != nil {
		s.writeErr(w, statusForSearch(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query, "results": results})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("query is required: %w", errBadRequest))
		return
	}
	results, err := s.deps.Search.RelatedContext(r.Context(), userFrom(r.Context()), req.Query, req.CollectionID)
	if err != nil {
		s.writeErr(w, statusForSearch(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query, "results": results})
}

// statusForSearch treats a failing embedding provider as an upstream error.
func statusForSearch(err error) int {
	if st := statusForErr(err); st != http.StatusInternalServerError {
		return st
	}
	if isUpstream(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
