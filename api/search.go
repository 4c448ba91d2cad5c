package api

import (
	"encoding/json"
	"net/http"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/search"
)

type searchRequest struct {
	OrganizationID string   `json:"organizationId"`
	Query          string   `json:"query"`
	MaxResults     int      `json:"maxResults,omitempty"`
	MinSimilarity  float32  `json:"minSimilarity,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	IncludeContent *bool    `json:"includeContent,omitempty"`
}

type searchResponse struct {
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"request body must be valid JSON", s.logger)
		return
	}

	orgID, err := document.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"organizationId must be a uuid", s.logger)
		return
	}

	if req.MaxResults == 0 {
		req.MaxResults = 10
	}
	includeContent := true
	if req.IncludeContent != nil {
		includeContent = *req.IncludeContent
	}

	query, err := search.NewQuery(orgID, req.Query, req.MaxResults,
		req.MinSimilarity, req.Tags, includeContent)
	if err != nil {
		writeDomainError(w, err, s.logger)
		return
	}

	results, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		writeDomainError(w, err, s.logger)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)}, s.logger)
}
