package search_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/log"
	"github.com/arkivo/arkivo/internal/search"
	"github.com/arkivo/arkivo/internal/testutil"
)

// cacheFixture wires a Cache over a real Searcher backed by the
// in-memory fakes. The embedder's call count measures how many times
// the underlying search actually ran.
type cacheFixture struct {
	embedder *testutil.MockEmbedder
	corpus   *search.Corpus
	cache    *search.Cache
	org      document.OrganizationID
}

func newCacheFixture(t *testing.T, maxSize int, ttl time.Duration) *cacheFixture {
	t.Helper()

	repo := testutil.NewMemoryRepository()
	org := document.NewOrganizationID()
	doc := makeCompletedDoc(t, repo, org, "cached document", 1)

	store := testutil.NewMemoryVectorStore()
	store.AddEntry(testutil.VectorEntry{
		OrganizationID: org,
		DocumentID:     doc.ID(),
		ChunkID:        doc.Chunks()[0].ID(),
		Vector:         testutil.DeterministicVector("what is in the corpus"),
	})

	embedder := &testutil.MockEmbedder{}
	corpus := &search.Corpus{}
	inner := search.NewSearcher(embedder, store, repo, log.NewNop(), "model")
	return &cacheFixture{
		embedder: embedder,
		corpus:   corpus,
		cache:    search.NewCache(inner, corpus, maxSize, ttl),
		org:      org,
	}
}

func TestCacheServesRepeatQueriesWithoutRecomputing(t *testing.T) {
	f := newCacheFixture(t, 10, time.Minute)
	q := mustQuery(t, f.org, 10, true)

	first, err := f.cache.Search(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.cache.Search(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}

	if f.embedder.Calls() != 1 {
		t.Errorf("underlying search ran %d times, want 1", f.embedder.Calls())
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("result lengths = %d, %d; want 1, 1", len(first), len(second))
	}
	if first[0].ChunkID != second[0].ChunkID {
		t.Error("cached result differs from the computed one")
	}
}

func TestCacheCollapsesConcurrentIdenticalQueries(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newCacheFixture(t, 10, time.Minute)
	f.embedder.Block = make(chan struct{})
	q := mustQuery(t, f.org, 10, true)

	const callers = 8
	var wg sync.WaitGroup
	errors := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errors[i] = f.cache.Search(context.Background(), q)
		}(i)
	}

	// Let every caller reach the flight before the embedding resolves.
	time.Sleep(50 * time.Millisecond)
	close(f.embedder.Block)
	wg.Wait()

	for i, err := range errors {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}
	if got := f.embedder.Calls(); got != 1 {
		t.Errorf("underlying search ran %d times across %d concurrent callers, want 1",
			got, callers)
	}
}

func TestCacheInvalidatesOnCorpusBump(t *testing.T) {
	f := newCacheFixture(t, 10, time.Minute)
	q := mustQuery(t, f.org, 10, true)

	if _, err := f.cache.Search(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	f.corpus.Bump()
	if _, err := f.cache.Search(context.Background(), q); err != nil {
		t.Fatal(err)
	}

	if got := f.embedder.Calls(); got != 2 {
		t.Errorf("underlying search ran %d times, want 2 after corpus change", got)
	}
}

func TestCacheTTLBackstop(t *testing.T) {
	f := newCacheFixture(t, 10, 10*time.Millisecond)
	q := mustQuery(t, f.org, 10, true)

	if _, err := f.cache.Search(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := f.cache.Search(context.Background(), q); err != nil {
		t.Fatal(err)
	}

	if got := f.embedder.Calls(); got != 2 {
		t.Errorf("underlying search ran %d times, want 2 after TTL expiry", got)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	f := newCacheFixture(t, 2, time.Minute)

	queries := []search.Query{}
	for _, text := range []string{"first query", "second query", "third query"} {
		q, err := search.NewQuery(f.org, text, 10, 0, nil, true)
		if err != nil {
			t.Fatal(err)
		}
		queries = append(queries, q)
	}

	for _, q := range queries {
		if _, err := f.cache.Search(context.Background(), q); err != nil {
			t.Fatal(err)
		}
	}
	// The first query was evicted by the third; asking again recomputes.
	if _, err := f.cache.Search(context.Background(), queries[0]); err != nil {
		t.Fatal(err)
	}

	if got := f.embedder.Calls(); got != 4 {
		t.Errorf("underlying search ran %d times, want 4 (3 fills + 1 after eviction)", got)
	}
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	f := newCacheFixture(t, 10, time.Minute)
	q := mustQuery(t, f.org, 10, true)

	f.embedder.Err = context.DeadlineExceeded
	if _, err := f.cache.Search(context.Background(), q); err == nil {
		t.Fatal("expected failure")
	}

	f.embedder.Err = nil
	results, err := f.cache.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("search after transient failure: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results after recovery, want 1", len(results))
	}
}
