// Package search answers natural-language queries over a tenant's
// document corpus: embed the query, run a tenant-scoped vector search,
// resolve hits against the owning documents, and merge the results
// into one globally ranked list.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/errs"
	"github.com/arkivo/arkivo/internal/log"
)

// Searcher is the search use case. It is read-only and safe for
// concurrent use.
type Searcher struct {
	embedder Embedder
	vectors  VectorSearcher
	docs     DocumentReader
	logger   log.Logger
	model    string
}

// NewSearcher wires the search use case.
func NewSearcher(embedder Embedder, vectors VectorSearcher, docs DocumentReader,
	logger log.Logger, embedModel string) *Searcher {
	return &Searcher{
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		logger:   logger,
		model:    embedModel,
	}
}

// Search executes the query and returns results sorted by descending
// relevance, truncated to the query's MaxResults only after the global
// merge so the strongest matches win even when concentrated in one
// document.
//
// An embedding or vector-store failure fails the whole search; a
// partial result would silently misrepresent the corpus. Index drift
// (a hit whose chunk no longer exists) drops only that hit.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Result, error) {
	queryVec, err := s.embedder.GenerateEmbedding(ctx, q.Text(), s.model)
	if err != nil {
		return nil, errs.External("embedding query", err)
	}

	hits, err := s.vectors.SearchVectors(ctx, VectorQuery{
		Embedding:      queryVec,
		OrganizationID: q.OrganizationID(),
		TopK:           q.MaxResults(),
		MinScore:       q.MinSimilarity(),
		Tags:           q.Tags(),
	})
	if err != nil {
		return nil, errs.External("vector search", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// Group hits per document so each document is fetched once.
	order := make([]document.DocumentID, 0, len(hits))
	grouped := make(map[document.DocumentID][]VectorHit, len(hits))
	for _, hit := range hits {
		if _, seen := grouped[hit.DocumentID]; !seen {
			order = append(order, hit.DocumentID)
		}
		grouped[hit.DocumentID] = append(grouped[hit.DocumentID], hit)
	}

	var results []Result
	for _, docID := range order {
		doc, err := s.docs.FindByIDAndOrganization(ctx, docID, q.OrganizationID())
		if err != nil {
			if errs.IsKind(err, errs.KindNotFound) {
				// Either the document is gone or the store returned a
				// hit from another tenant; both are dropped here.
				s.logger.Warn("dropping hits for unresolvable document",
					"document_id", docID.String(),
					"hits", len(grouped[docID]))
				continue
			}
			return nil, fmt.Errorf("loading document %s: %w", docID, err)
		}

		for _, hit := range grouped[docID] {
			result, ok := s.assemble(doc, hit, q.IncludeContent())
			if !ok {
				continue
			}
			results = append(results, result)
		}
	}

	// Global merge-then-sort; truncation happens only after.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if len(results) > q.MaxResults() {
		results = results[:q.MaxResults()]
	}
	return results, nil
}

// assemble locates the hit's chunk inside the loaded document and
// builds the result. A missing chunk (index/document drift) drops the
// single hit with a warning instead of failing the search. The score
// is the vector store's, carried unmodified.
func (s *Searcher) assemble(doc *document.Document, hit VectorHit, includeContent bool) (Result, bool) {
	chunk, ok := doc.ChunkByID(hit.ChunkID)
	if !ok {
		s.logger.Warn("vector hit references a chunk missing from the document",
			"document_id", doc.ID().String(),
			"chunk_id", hit.ChunkID.String())
		return Result{}, false
	}

	content := RedactedContent
	if includeContent {
		content = chunk.Content()
	}

	return Result{
		DocumentID:     doc.ID(),
		ChunkID:        chunk.ID(),
		Content:        content,
		RelevanceScore: hit.Score,
		DocumentTitle:  doc.Title(),
		ChunkIndex:     chunk.Index(),
	}, true
}
