package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/embedding"
	"github.com/arkivo/arkivo/internal/errs"
)

// MemoryRepository is an in-memory DocumentRepository with the same
// optimistic-concurrency contract as the Postgres implementation:
// saving an aggregate whose version does not match the stored version
// fails with a conflict. Loads return deep copies, so mutating a
// loaded aggregate never leaks into the store before Save.
type MemoryRepository struct {
	// FailSaveWith, when set, fails the next FailSaveTimes saves.
	// FailSaveSkip lets that many saves succeed first, so a test can
	// target a save later in a pipeline.
	FailSaveWith  error
	FailSaveTimes int
	FailSaveSkip  int

	mu   sync.Mutex
	docs map[document.DocumentID]*document.Document
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[document.DocumentID]*document.Document)}
}

// Save implements the repository port.
func (r *MemoryRepository) Save(_ context.Context, doc *document.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailSaveTimes > 0 && r.FailSaveWith != nil {
		if r.FailSaveSkip > 0 {
			r.FailSaveSkip--
		} else {
			r.FailSaveTimes--
			return r.FailSaveWith
		}
	}

	stored, exists := r.docs[doc.ID()]
	if exists && stored.Version() != doc.Version() {
		return errs.Conflict("document version is stale")
	}

	doc.SetVersion(doc.Version() + 1)
	r.docs[doc.ID()] = CloneDocument(doc)
	return nil
}

// FindByID implements the repository port.
func (r *MemoryRepository) FindByID(_ context.Context, id document.DocumentID) (*document.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, errs.NotFoundf("document %s not found", id)
	}
	return CloneDocument(doc), nil
}

// FindByIDAndOrganization implements the tenant-scoped reader port. A
// document outside org is reported as not found.
func (r *MemoryRepository) FindByIDAndOrganization(ctx context.Context,
	id document.DocumentID, org document.OrganizationID) (*document.Document, error) {
	doc, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OrganizationID() != org {
		return nil, errs.NotFoundf("document %s not found in organization %s", id, org)
	}
	return doc, nil
}

// ListByOrganization returns the tenant's documents, newest first.
// Limit 0 means no limit.
func (r *MemoryRepository) ListByOrganization(_ context.Context,
	org document.OrganizationID, limit int) ([]*document.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var docs []*document.Document
	for _, doc := range r.docs {
		if doc.OrganizationID() == org {
			docs = append(docs, CloneDocument(doc))
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt().After(docs[j].CreatedAt())
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Delete implements the repository port.
func (r *MemoryRepository) Delete(_ context.Context, id document.DocumentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[id]; !ok {
		return errs.NotFoundf("document %s not found", id)
	}
	delete(r.docs, id)
	return nil
}

// CloneDocument deep-copies an aggregate through its restore
// constructors, the same round-trip a real store performs.
func CloneDocument(doc *document.Document) *document.Document {
	chunks := make([]*document.Chunk, 0, len(doc.Chunks()))
	for _, c := range doc.Chunks() {
		var vec embedding.Vector
		if v, ok := c.Embedding(); ok {
			vec = v
		}
		chunks = append(chunks, document.RestoreChunk(
			c.ID(), c.DocumentID(), c.Content(), c.Index(),
			c.StartPosition(), c.EndPosition(), c.CreatedAt(), vec, c.EmbedFailure()))
	}

	var processedAt *time.Time
	if at, ok := doc.ProcessedAt(); ok {
		processedAt = &at
	}

	return document.Restore(
		doc.ID(), doc.OrganizationID(), doc.Title(), doc.Content(), doc.FileInfo(),
		doc.Metadata(), doc.Tags(), doc.CreatedAt(), doc.Status(),
		chunks, processedAt, doc.ErrorMessage(), doc.Version())
}
