package postgres_test

import (
	"context"
	"testing"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/errs"
	"github.com/arkivo/arkivo/internal/log"
	"github.com/arkivo/arkivo/internal/postgres"
	"github.com/arkivo/arkivo/internal/search"
	"github.com/arkivo/arkivo/internal/testutil"
)

// The tests below need Docker for the pgvector container and are
// skipped in short mode.

func setup(t *testing.T) (*postgres.Repository, *postgres.VectorStore, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	container, cleanup := testutil.SetupTestDB(t)
	logger := log.NewNop()
	return postgres.NewRepository(container.Pool, logger),
		postgres.NewVectorStore(container.Pool, logger),
		cleanup
}

func newDoc(t *testing.T, org document.OrganizationID, title string, tags []string) *document.Document {
	t.Helper()
	doc, _, err := document.NewDocument(org, title,
		"First sentence of the body. Second sentence of the body.",
		document.FileInfo{Name: "body.txt", ContentType: "text/plain", Size: 56},
		map[string]string{"source": "upload"}, tags)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func embeddedChunk(t *testing.T, docID document.DocumentID, text string, index int) *document.Chunk {
	t.Helper()
	c, err := document.NewChunk(docID, text, index, index*30, index*30+len(text))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.MarkEmbedded(testutil.DeterministicVector(text)); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRepositoryRoundTrip(t *testing.T) {
	repo, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	org := document.NewOrganizationID()
	doc := newDoc(t, org, "round trip", []string{"reports", "2026"})

	if err := repo.Save(ctx, doc); err != nil {
		t.Fatalf("initial save: %v", err)
	}
	if doc.Version() != 1 {
		t.Errorf("version after insert = %d, want 1", doc.Version())
	}

	// Run the lifecycle and persist the completed aggregate.
	if _, err := doc.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	ready := embeddedChunk(t, doc.ID(), "First sentence of the body.", 0)
	failed, err := document.NewChunk(doc.ID(), "Second sentence of the body.", 1, 28, 56)
	if err != nil {
		t.Fatal(err)
	}
	failed.MarkEmbedFailed("provider rejected text")
	if _, err := doc.CompleteProcessing([]*document.Chunk{ready, failed}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, doc); err != nil {
		t.Fatalf("completed save: %v", err)
	}

	loaded, err := repo.FindByID(ctx, doc.ID())
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if loaded.Status() != document.StatusCompleted {
		t.Errorf("status = %s, want completed", loaded.Status())
	}
	if loaded.Version() != 2 {
		t.Errorf("version = %d, want 2", loaded.Version())
	}
	if loaded.Title() != "round trip" || loaded.Metadata()["source"] != "upload" {
		t.Error("document fields did not survive the round trip")
	}
	if got := loaded.Tags(); len(got) != 2 || got[0] != "reports" {
		t.Errorf("tags = %v", got)
	}
	if _, ok := loaded.ProcessedAt(); !ok {
		t.Error("processedAt missing after completed save")
	}

	chunks := loaded.Chunks()
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].EmbeddingState() != document.EmbeddingReady {
		t.Errorf("chunk 0 state = %s, want ready", chunks[0].EmbeddingState())
	}
	if vec, ok := chunks[0].Embedding(); !ok || vec.IsZero() {
		t.Error("chunk 0 embedding missing after restore")
	}
	if chunks[1].EmbeddingState() != document.EmbeddingFailed {
		t.Errorf("chunk 1 state = %s, want failed", chunks[1].EmbeddingState())
	}
	if chunks[1].EmbedFailure() != "provider rejected text" {
		t.Errorf("chunk 1 failure = %q", chunks[1].EmbedFailure())
	}
}

func TestRepositoryVersionConflict(t *testing.T) {
	repo, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	doc := newDoc(t, document.NewOrganizationID(), "contested", nil)
	if err := repo.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}

	// Two loads of the same version; the second save must conflict.
	first, err := repo.FindByID(ctx, doc.ID())
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.FindByID(ctx, doc.ID())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := first.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("first writer save: %v", err)
	}

	if _, err := second.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	err = repo.Save(ctx, second)
	if !errs.IsKind(err, errs.KindConflict) {
		t.Errorf("second writer save = %v, want conflict", err)
	}
}

func TestRepositoryTenantScopedFind(t *testing.T) {
	repo, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	org := document.NewOrganizationID()
	doc := newDoc(t, org, "scoped", nil)
	if err := repo.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.FindByIDAndOrganization(ctx, doc.ID(), org); err != nil {
		t.Errorf("owner lookup failed: %v", err)
	}

	_, err := repo.FindByIDAndOrganization(ctx, doc.ID(), document.NewOrganizationID())
	if !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("foreign lookup = %v, want not found", err)
	}
}

func TestRepositoryDeleteCascades(t *testing.T) {
	repo, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	doc := newDoc(t, document.NewOrganizationID(), "doomed", nil)
	if err := repo.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}

	if err := repo.Delete(ctx, doc.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, doc.ID()); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("FindByID after delete = %v, want not found", err)
	}
	if err := repo.Delete(ctx, doc.ID()); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("second delete = %v, want not found", err)
	}
}

func TestRepositoryListByOrganization(t *testing.T) {
	repo, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	org := document.NewOrganizationID()
	for _, title := range []string{"first", "second", "third"} {
		if err := repo.Save(ctx, newDoc(t, org, title, nil)); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.Save(ctx, newDoc(t, document.NewOrganizationID(), "foreign", nil)); err != nil {
		t.Fatal(err)
	}

	docs, err := repo.ListByOrganization(ctx, org, 0)
	if err != nil {
		t.Fatalf("ListByOrganization: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("got %d documents, want 3", len(docs))
	}
	for _, d := range docs {
		if d.OrganizationID() != org {
			t.Errorf("document %s from another tenant in listing", d.ID())
		}
	}
}

func TestVectorStoreSearchAndFilters(t *testing.T) {
	repo, vectors, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	org := document.NewOrganizationID()
	otherOrg := document.NewOrganizationID()

	store := func(doc *document.Document, chunkText string) *document.Chunk {
		t.Helper()
		if err := repo.Save(ctx, doc); err != nil {
			t.Fatal(err)
		}
		c := embeddedChunk(t, doc.ID(), chunkText, 0)
		if err := vectors.StoreEmbeddings(ctx, doc, []*document.Chunk{c}); err != nil {
			t.Fatal(err)
		}
		return c
	}

	tagged := newDoc(t, org, "tagged", []string{"reports"})
	taggedChunk := store(tagged, "the report body")
	untagged := newDoc(t, org, "untagged", nil)
	store(untagged, "some other body")
	foreign := newDoc(t, otherOrg, "foreign", nil)
	store(foreign, "the report body")

	query := testutil.DeterministicVector("the report body")

	// Tenant scope: identical vectors in another org never match.
	hits, err := vectors.SearchVectors(ctx, search.VectorQuery{
		Embedding: query, OrganizationID: org, TopK: 10,
	})
	if err != nil {
		t.Fatalf("SearchVectors: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 in-tenant", len(hits))
	}
	if hits[0].ChunkID != taggedChunk.ID() || hits[0].Score < 0.999 {
		t.Errorf("best hit = %+v, want exact match first", hits[0])
	}
	for _, h := range hits {
		if h.DocumentID == foreign.ID() {
			t.Error("cross-tenant hit returned")
		}
	}

	// Tag filter narrows to the tagged document.
	hits, err = vectors.SearchVectors(ctx, search.VectorQuery{
		Embedding: query, OrganizationID: org, TopK: 10, Tags: []string{"reports"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].DocumentID != tagged.ID() {
		t.Errorf("tag-filtered hits = %+v, want only the tagged document", hits)
	}

	// Exclusion removes the named document.
	hits, err = vectors.SearchVectors(ctx, search.VectorQuery{
		Embedding: query, OrganizationID: org, TopK: 10,
		ExcludedDocumentIDs: []document.DocumentID{tagged.ID()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].DocumentID != untagged.ID() {
		t.Errorf("exclusion-filtered hits = %+v, want only the untagged document", hits)
	}

	// Deleting the document's vectors removes them from search.
	if err := vectors.DeleteByDocument(ctx, tagged.ID()); err != nil {
		t.Fatal(err)
	}
	hits, err = vectors.SearchVectors(ctx, search.VectorQuery{
		Embedding: query, OrganizationID: org, TopK: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.DocumentID == tagged.ID() {
			t.Error("deleted document still hit by search")
		}
	}

	// Org-level delete empties the tenant.
	if err := vectors.DeleteByOrganization(ctx, org); err != nil {
		t.Fatal(err)
	}
	hits, err = vectors.SearchVectors(ctx, search.VectorQuery{
		Embedding: query, OrganizationID: org, TopK: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits after org delete = %d, want 0", len(hits))
	}
}
