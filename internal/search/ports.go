package search

import (
	"context"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/embedding"
)

// VectorQuery is the request shape handed to the vector store. TopK
// and MinScore are hints; the searcher re-ranks and truncates globally
// and never treats the store's result count as authoritative.
type VectorQuery struct {
	Embedding           embedding.Vector
	OrganizationID      document.OrganizationID
	TopK                int
	MinScore            float32
	ExcludedDocumentIDs []document.DocumentID
	Tags                []string
}

// VectorHit is one similarity match returned by the vector store,
// ordered by descending score.
type VectorHit struct {
	DocumentID document.DocumentID
	ChunkID    document.ChunkID
	Score      float32
}

// VectorSearcher is the ANN search port.
type VectorSearcher interface {
	SearchVectors(ctx context.Context, q VectorQuery) ([]VectorHit, error)
}

// DocumentReader loads documents scoped to an organization. A document
// outside the requested organization must come back as not-found; this
// is the hard tenant-isolation check.
type DocumentReader interface {
	FindByIDAndOrganization(ctx context.Context, id document.DocumentID,
		org document.OrganizationID) (*document.Document, error)
}

// Embedder generates the query embedding.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text, model string) (embedding.Vector, error)
}
