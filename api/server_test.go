package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arkivo/arkivo/api"
	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/ingest"
	"github.com/arkivo/arkivo/internal/log"
	"github.com/arkivo/arkivo/internal/search"
	"github.com/arkivo/arkivo/internal/testutil"
)

type fixture struct {
	ts       *httptest.Server
	repo     *testutil.MemoryRepository
	store    *testutil.MemoryVectorStore
	embedder *testutil.MockEmbedder
	org      document.OrganizationID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := testutil.NewMemoryRepository()
	store := testutil.NewMemoryVectorStore()
	embedder := &testutil.MockEmbedder{}
	logger := log.NewNop()

	processor := ingest.NewProcessor(repo, embedder, store,
		&testutil.RecordingPublisher{}, &search.Corpus{}, logger, ingest.Config{})
	searcher := search.NewSearcher(embedder, store, repo, logger, "model")

	srv := api.NewServer(api.ServerConfig{
		Logger:    logger,
		Processor: processor,
		Searcher:  searcher,
		Documents: repo,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{
		ts:       ts,
		repo:     repo,
		store:    store,
		embedder: embedder,
		org:      document.NewOrganizationID(),
	}
}

// do sends a JSON request and decodes the JSON response body.
func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, decoded
}

// createDocument posts a document and returns its id.
func (f *fixture) createDocument(t *testing.T, title, content string, tags []string) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/v1/documents", map[string]any{
		"organizationId": f.org.String(),
		"title":          title,
		"content":        content,
		"tags":           tags,
	})
	if status != http.StatusCreated {
		t.Fatalf("create returned %d: %v", status, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("create response missing id: %v", body)
	}
	return id
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	id := f.createDocument(t, "quarterly report",
		"Revenue grew in the first quarter. Costs stayed flat across regions.",
		[]string{"reports"})

	// Trigger processing; the response carries the completed aggregate.
	status, body := f.do(t, http.MethodPost, "/api/v1/documents/"+id+"/process", nil)
	if status != http.StatusOK {
		t.Fatalf("process returned %d: %v", status, body)
	}
	if body["status"] != "completed" {
		t.Errorf("status after process = %v, want completed", body["status"])
	}
	if body["chunkCount"].(float64) < 1 {
		t.Errorf("chunkCount = %v, want at least 1", body["chunkCount"])
	}
	if body["chunkCount"] != body["embeddedCount"] {
		t.Errorf("embeddedCount %v != chunkCount %v with a healthy embedder",
			body["embeddedCount"], body["chunkCount"])
	}

	// The document is now retrievable in its tenant.
	status, body = f.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/documents/%s?organizationId=%s", id, f.org), nil)
	if status != http.StatusOK {
		t.Fatalf("get returned %d: %v", status, body)
	}
	if body["title"] != "quarterly report" {
		t.Errorf("title = %v", body["title"])
	}
	if body["processedAt"] == nil {
		t.Error("processedAt missing on completed document")
	}

	// And searchable.
	status, body = f.do(t, http.MethodPost, "/api/v1/search", map[string]any{
		"organizationId": f.org.String(),
		"query":          "Revenue grew in the first quarter. Costs stayed flat across regions.",
	})
	if status != http.StatusOK {
		t.Fatalf("search returned %d: %v", status, body)
	}
	if body["count"].(float64) < 1 {
		t.Fatalf("search found nothing: %v", body)
	}
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	if first["documentId"] != id {
		t.Errorf("top hit document = %v, want %s", first["documentId"], id)
	}

	// Archive removes it from search but keeps the record.
	status, body = f.do(t, http.MethodPost, "/api/v1/documents/"+id+"/archive", nil)
	if status != http.StatusOK {
		t.Fatalf("archive returned %d: %v", status, body)
	}
	if body["status"] != "archived" {
		t.Errorf("status after archive = %v", body["status"])
	}
	if f.store.EntryCount() != 0 {
		t.Errorf("vectors remain after archive: %d", f.store.EntryCount())
	}
}

func TestDeleteDocumentOverHTTP(t *testing.T) {
	f := newFixture(t)
	id := f.createDocument(t, "doomed", "Some content worth deleting later.", nil)

	status, _ := f.do(t, http.MethodDelete,
		fmt.Sprintf("/api/v1/documents/%s?organizationId=%s", id, f.org), nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete returned %d", status)
	}

	status, body := f.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/documents/%s?organizationId=%s", id, f.org), nil)
	if status != http.StatusNotFound {
		t.Errorf("get after delete returned %d: %v", status, body)
	}
}

func TestDeleteIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	id := f.createDocument(t, "guarded", "Content another tenant must not remove.", nil)

	foreign := document.NewOrganizationID()
	status, body := f.do(t, http.MethodDelete,
		fmt.Sprintf("/api/v1/documents/%s?organizationId=%s", id, foreign), nil)
	if status != http.StatusNotFound {
		t.Fatalf("foreign delete returned %d: %v", status, body)
	}

	// Still present for the owner.
	status, _ = f.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/documents/%s?organizationId=%s", id, f.org), nil)
	if status != http.StatusOK {
		t.Errorf("owner get after foreign delete returned %d", status)
	}
}

func TestListDocumentsOverHTTP(t *testing.T) {
	f := newFixture(t)
	for _, title := range []string{"first", "second", "third"} {
		f.createDocument(t, title, "Body text for listing tests.", nil)
	}

	status, body := f.do(t, http.MethodGet,
		"/api/v1/documents?organizationId="+f.org.String(), nil)
	if status != http.StatusOK {
		t.Fatalf("list returned %d: %v", status, body)
	}
	if body["count"].(float64) != 3 {
		t.Errorf("count = %v, want 3", body["count"])
	}

	status, body = f.do(t, http.MethodGet,
		"/api/v1/documents?organizationId="+f.org.String()+"&limit=2", nil)
	if status != http.StatusOK {
		t.Fatal(status)
	}
	if body["count"].(float64) != 2 {
		t.Errorf("limited count = %v, want 2", body["count"])
	}
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	id := f.createDocument(t, "mapped", "Content to exercise the error mapping.", nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			method:     http.MethodPost,
			path:       "/api/v1/documents",
			body:       nil, // empty body is not valid JSON
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "bad document id",
			method:     http.MethodPost,
			path:       "/api/v1/documents/not-a-uuid/process",
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "unknown document",
			method:     http.MethodPost,
			path:       "/api/v1/documents/" + document.NewDocumentID().String() + "/process",
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:   "blank title",
			method: http.MethodPost,
			path:   "/api/v1/documents",
			body: map[string]any{
				"organizationId": f.org.String(),
				"title":          "  ",
				"content":        "some content",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:   "search without query",
			method: http.MethodPost,
			path:   "/api/v1/search",
			body: map[string]any{
				"organizationId": f.org.String(),
				"query":          "",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "archive pending document",
			method:     http.MethodPost,
			path:       "/api/v1/documents/" + id + "/archive",
			wantStatus: http.StatusConflict,
			wantCode:   "invalid_state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, tt.method, tt.path, tt.body)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d (%v)", status, tt.wantStatus, body)
			}
			if code := errorCode(body); code != tt.wantCode {
				t.Errorf("error code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestEmbedderOutageMapsToBadGateway(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "searchable", "Some content that never gets processed.", nil)

	f.embedder.Err = fmt.Errorf("provider down")
	status, body := f.do(t, http.MethodPost, "/api/v1/search", map[string]any{
		"organizationId": f.org.String(),
		"query":          "anything",
	})
	if status != http.StatusBadGateway {
		t.Fatalf("search during outage returned %d: %v", status, body)
	}
	if errorCode(body) != "upstream_failed" {
		t.Errorf("error code = %q, want upstream_failed", errorCode(body))
	}
	// The raw provider error must not leak to the client.
	if msg := body["error"].(map[string]any)["message"].(string); strings.Contains(msg, "provider down") {
		t.Errorf("provider error leaked: %q", msg)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet,
		f.ts.URL+"/api/v1/documents?organizationId="+f.org.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-ID", "caller-supplied-id")

	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "caller-supplied-id" {
		t.Errorf("X-Request-ID = %q, want the caller's id", got)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, err := f.ts.Client().Get(f.ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned %d", path, resp.StatusCode)
		}
		if body["status"] != "ok" {
			t.Errorf("%s status = %v", path, body["status"])
		}
	}
}

func TestSearchExcludesContentWhenAsked(t *testing.T) {
	f := newFixture(t)
	id := f.createDocument(t, "private", "This sentence is the confidential body.", nil)
	if status, body := f.do(t, http.MethodPost, "/api/v1/documents/"+id+"/process", nil); status != http.StatusOK {
		t.Fatalf("process returned %d: %v", status, body)
	}

	status, body := f.do(t, http.MethodPost, "/api/v1/search", map[string]any{
		"organizationId": f.org.String(),
		"query":          "This sentence is the confidential body.",
		"includeContent": false,
	})
	if status != http.StatusOK {
		t.Fatalf("search returned %d: %v", status, body)
	}
	results := body["results"].([]any)
	if len(results) == 0 {
		t.Fatal("no results")
	}
	content := results[0].(map[string]any)["content"].(string)
	if strings.Contains(content, "confidential") {
		t.Errorf("content leaked despite includeContent=false: %q", content)
	}
}
