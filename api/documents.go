package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/arkivo/arkivo/internal/document"
)

// maxDocumentBody caps the create-document request body.
const maxDocumentBody = 10 << 20 // 10 MiB

type createDocumentRequest struct {
	OrganizationID string            `json:"organizationId"`
	Title          string            `json:"title"`
	Content        string            `json:"content"`
	FileName       string            `json:"fileName,omitempty"`
	ContentType    string            `json:"contentType,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
}

type documentResponse struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organizationId"`
	Title          string            `json:"title"`
	Status         string            `json:"status"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	FileName       string            `json:"fileName,omitempty"`
	ContentType    string            `json:"contentType,omitempty"`
	FileSize       int64             `json:"fileSize,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	ChunkCount     int               `json:"chunkCount"`
	EmbeddedCount  int               `json:"embeddedCount"`
	CreatedAt      time.Time         `json:"createdAt"`
	ProcessedAt    *time.Time        `json:"processedAt,omitempty"`
	Version        int64             `json:"version"`
}

// toDocumentResponse flattens the aggregate into the wire shape.
// Listings load documents without chunks, so the counts are only
// meaningful on single-document responses.
func toDocumentResponse(doc *document.Document) documentResponse {
	embedded := 0
	for _, c := range doc.Chunks() {
		if c.EmbeddingState() == document.EmbeddingReady {
			embedded++
		}
	}

	resp := documentResponse{
		ID:             doc.ID().String(),
		OrganizationID: doc.OrganizationID().String(),
		Title:          doc.Title(),
		Status:         string(doc.Status()),
		ErrorMessage:   doc.ErrorMessage(),
		FileName:       doc.FileInfo().Name,
		ContentType:    doc.FileInfo().ContentType,
		FileSize:       doc.FileInfo().Size,
		Metadata:       doc.Metadata(),
		Tags:           doc.Tags(),
		ChunkCount:     len(doc.Chunks()),
		EmbeddedCount:  embedded,
		CreatedAt:      doc.CreatedAt(),
		Version:        doc.Version(),
	}
	if t, ok := doc.ProcessedAt(); ok {
		resp.ProcessedAt = &t
	}
	return resp
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBody)

	var req createDocumentRequest
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

	fileInfo := document.FileInfo{
		Name:        req.FileName,
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
	}
	doc, err := s.processor.Create(r.Context(), orgID, req.Title, req.Content,
		fileInfo, req.Metadata, req.Tags)
	if err != nil {
		writeDomainError(w, err, s.logger)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc), s.logger)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	org, ok := s.queryOrganizationID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request",
				"limit must be a positive integer", s.logger)
			return
		}
		limit = n
	}

	docs, err := s.documents.ListByOrganization(r.Context(), org, limit)
	if err != nil {
		writeDomainError(w, err, s.logger)
		return
	}

	items := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": items,
		"count":     len(items),
	}, s.logger)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathDocumentID(w, r)
	if !ok {
		return
	}
	org, ok := s.queryOrganizationID(w, r)
	if !ok {
		return
	}

	doc, err := s.documents.FindByIDAndOrganization(r.Context(), id, org)
	if err != nil {
		writeDomainError(w, err, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc), s.logger)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathDocumentID(w, r)
	if !ok {
		return
	}
	org, ok := s.queryOrganizationID(w, r)
	if !ok {
		return
	}

	// Scope the lookup to the caller's tenant before touching anything.
	if _, err := s.documents.FindByIDAndOrganization(r.Context(), id, org); err != nil {
		writeDomainError(w, err, s.logger)
		return
	}
	if err := s.processor.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, s.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.processor.Process)
}

func (s *Server) handleRetryDocument(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.processor.Retry)
}

func (s *Server) handleArchiveDocument(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.processor.Archive)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id document.DocumentID) (*document.Document, error)) {
	id, ok := s.pathDocumentID(w, r)
	if !ok {
		return
	}
	doc, err := op(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc), s.logger)
}
