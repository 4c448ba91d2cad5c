// Package api exposes the ingestion and search use cases over HTTP.
//
// Routes live under /api/v1 and go through the middleware chain
// (recovery, request id, access logging). Health and readiness probes
// sit outside the chain so probe traffic stays out of the access log.
package api

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/log"
	"github.com/arkivo/arkivo/internal/search"
)

// Processor is the slice of the ingestion use case the handlers need.
type Processor interface {
	Create(ctx context.Context, orgID document.OrganizationID, title, content string,
		fileInfo document.FileInfo, metadata map[string]string, tags []string) (*document.Document, error)
	Process(ctx context.Context, id document.DocumentID) (*document.Document, error)
	Retry(ctx context.Context, id document.DocumentID) (*document.Document, error)
	Archive(ctx context.Context, id document.DocumentID) (*document.Document, error)
	Delete(ctx context.Context, id document.DocumentID) error
}

// Searcher answers validated queries. Both the plain searcher and the
// caching wrapper satisfy it.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Result, error)
}

// DocumentReader serves the read-only document endpoints.
type DocumentReader interface {
	FindByIDAndOrganization(ctx context.Context, id document.DocumentID,
		orgID document.OrganizationID) (*document.Document, error)
	ListByOrganization(ctx context.Context, orgID document.OrganizationID,
		limit int) ([]*document.Document, error)
}

// ServerConfig carries the dependencies for NewServer.
type ServerConfig struct {
	Logger    log.Logger
	Processor Processor
	Searcher  Searcher
	Documents DocumentReader

	// Pool, when set, is pinged by the readiness probe.
	Pool *pgxpool.Pool
}

// Server is the HTTP front end.
type Server struct {
	logger    log.Logger
	processor Processor
	searcher  Searcher
	documents DocumentReader
	pool      *pgxpool.Pool
	handler   http.Handler
}

// NewServer builds the route table and middleware chain.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		logger:    cfg.Logger,
		processor: cfg.Processor,
		searcher:  cfg.Searcher,
		documents: cfg.Documents,
		pool:      cfg.Pool,
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/v1/documents", s.handleCreateDocument)
	apiMux.HandleFunc("GET /api/v1/documents", s.handleListDocuments)
	apiMux.HandleFunc("GET /api/v1/documents/{id}", s.handleGetDocument)
	apiMux.HandleFunc("DELETE /api/v1/documents/{id}", s.handleDeleteDocument)
	apiMux.HandleFunc("POST /api/v1/documents/{id}/process", s.handleProcessDocument)
	apiMux.HandleFunc("POST /api/v1/documents/{id}/retry", s.handleRetryDocument)
	apiMux.HandleFunc("POST /api/v1/documents/{id}/archive", s.handleArchiveDocument)
	apiMux.HandleFunc("POST /api/v1/search", s.handleSearch)

	var chained http.Handler = apiMux
	chained = loggingMiddleware(s.logger)(chained)
	chained = requestIDMiddleware(chained)
	chained = recoveryMiddleware(s.logger)(chained)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.HandleFunc("GET /ready", s.handleReady)
	root.Handle("/api/", chained)
	s.handler = root

	return s
}

// Handler returns the root handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// pathDocumentID parses the {id} path segment, writing the error
// response itself on failure.
func (s *Server) pathDocumentID(w http.ResponseWriter, r *http.Request) (document.DocumentID, bool) {
	id, err := document.ParseDocumentID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"document id must be a uuid", s.logger)
		return document.DocumentID{}, false
	}
	return id, true
}

// queryOrganizationID parses the mandatory organizationId query
// parameter, writing the error response itself on failure.
func (s *Server) queryOrganizationID(w http.ResponseWriter, r *http.Request) (document.OrganizationID, bool) {
	org, err := document.ParseOrganizationID(r.URL.Query().Get("organizationId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"organizationId query parameter must be a uuid", s.logger)
		return document.OrganizationID{}, false
	}
	return org, true
}
