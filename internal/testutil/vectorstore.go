package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/embedding"
	"github.com/arkivo/arkivo/internal/search"
)

// VectorEntry is one stored chunk vector with its search payload.
type VectorEntry struct {
	OrganizationID document.OrganizationID
	DocumentID     document.DocumentID
	ChunkID        document.ChunkID
	Tags           []string
	Vector         embedding.Vector
}

// MemoryVectorStore is a brute-force in-memory vector store satisfying
// both the ingestion write port and the search port. It records the
// number of batch writes so tests can assert the "one batched call per
// document" contract.
type MemoryVectorStore struct {
	// FailStore, when set, fails StoreEmbeddings.
	FailStore error

	// FailSearch, when set, fails SearchVectors.
	FailSearch error

	mu         sync.Mutex
	entries    []VectorEntry
	batchCalls int
}

// NewMemoryVectorStore creates an empty store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{}
}

// StoreEmbeddings implements the ingestion port.
func (s *MemoryVectorStore) StoreEmbeddings(_ context.Context, doc *document.Document,
	chunks []*document.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batchCalls++
	if s.FailStore != nil {
		return s.FailStore
	}

	for _, c := range chunks {
		vec, ok := c.Embedding()
		if !ok {
			continue
		}
		s.entries = append(s.entries, VectorEntry{
			OrganizationID: doc.OrganizationID(),
			DocumentID:     doc.ID(),
			ChunkID:        c.ID(),
			Tags:           doc.Tags(),
			Vector:         vec,
		})
	}
	return nil
}

// DeleteByDocument implements the ingestion port.
func (s *MemoryVectorStore) DeleteByDocument(_ context.Context, id document.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.DocumentID != id {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// DeleteByOrganization removes a whole tenant's vectors.
func (s *MemoryVectorStore) DeleteByOrganization(_ context.Context, org document.OrganizationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.OrganizationID != org {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// SearchVectors implements the search port with exact cosine
// similarity over all stored entries.
func (s *MemoryVectorStore) SearchVectors(_ context.Context, q search.VectorQuery) ([]search.VectorHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSearch != nil {
		return nil, s.FailSearch
	}

	excluded := make(map[document.DocumentID]struct{}, len(q.ExcludedDocumentIDs))
	for _, id := range q.ExcludedDocumentIDs {
		excluded[id] = struct{}{}
	}

	var hits []search.VectorHit
	for _, e := range s.entries {
		if e.OrganizationID != q.OrganizationID {
			continue
		}
		if _, skip := excluded[e.DocumentID]; skip {
			continue
		}
		if !hasAllTags(e.Tags, q.Tags) {
			continue
		}
		sim, err := q.Embedding.CosineSimilarity(e.Vector)
		if err != nil {
			return nil, err
		}
		score := float32(sim)
		if score < q.MinScore {
			continue
		}
		hits = append(hits, search.VectorHit{
			DocumentID: e.DocumentID,
			ChunkID:    e.ChunkID,
			Score:      score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if q.TopK > 0 && len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	return hits, nil
}

// AddEntry injects a raw entry, bypassing ingestion. Used to simulate
// index drift and cross-tenant leaks.
func (s *MemoryVectorStore) AddEntry(e VectorEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// BatchCalls returns how many StoreEmbeddings calls were made.
func (s *MemoryVectorStore) BatchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchCalls
}

// EntryCount returns the number of stored vectors.
func (s *MemoryVectorStore) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func hasAllTags(entryTags, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(entryTags))
	for _, t := range entryTags {
		set[t] = struct{}{}
	}
	for _, t := range wanted {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
