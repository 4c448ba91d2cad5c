package ingest

import (
	"context"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/embedding"
)

// DocumentRepository is the persistence port the processor depends on.
// Save enforces optimistic concurrency: writing an aggregate whose
// version is stale fails with a conflict error instead of silently
// overwriting the newer version.
type DocumentRepository interface {
	FindByID(ctx context.Context, id document.DocumentID) (*document.Document, error)
	Save(ctx context.Context, doc *document.Document) error
	Delete(ctx context.Context, id document.DocumentID) error
}

// Embedder generates a vector for a piece of text using the named
// model. Blank text is invalid input; provider outages surface as
// external errors.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text, model string) (embedding.Vector, error)
}

// VectorStore receives the embedded chunks of a document in one
// batched write, and removes a document's vectors when it is retried
// or deleted. The document supplies the tenant scope and the tags that
// become the vector payload used for query-time filtering.
type VectorStore interface {
	StoreEmbeddings(ctx context.Context, doc *document.Document, chunks []*document.Chunk) error
	DeleteByDocument(ctx context.Context, id document.DocumentID) error
}

// CorpusVersioner is bumped after every successful ingestion so cached
// search results for the old corpus are never served again.
type CorpusVersioner interface {
	Bump()
}
