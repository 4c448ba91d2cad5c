package embedder

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/arkivo/arkivo/internal/errs"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embeddings    []float32
	embedErr      error
	returnEmpty   bool
	callCount     int
	lastInputText string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInputText = req.Input[0].Content[0].Text
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{Embeddings: nil}, nil
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: m.embeddings}},
	}, nil
}

func uniformVector(n int, value float32) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = value
	}
	return v
}

func TestGenerateEmbedding(t *testing.T) {
	mock := &mockEmbedder{embeddings: uniformVector(768, 0.5)}
	client := New(mock, 100, 0)

	vec, err := client.GenerateEmbedding(context.Background(), "some text", "model")
	if err != nil {
		t.Fatalf("GenerateEmbedding() failed: %v", err)
	}
	if vec.Dimension() != 768 {
		t.Errorf("dimension = %d, want 768", vec.Dimension())
	}
	if mock.lastInputText != "some text" {
		t.Errorf("provider received %q, want the query text", mock.lastInputText)
	}
}

func TestGenerateEmbeddingTruncatesAndRenormalizes(t *testing.T) {
	mock := &mockEmbedder{embeddings: uniformVector(3072, 0.25)}
	client := New(mock, 100, 768)

	vec, err := client.GenerateEmbedding(context.Background(), "some text", "model")
	if err != nil {
		t.Fatal(err)
	}
	if vec.Dimension() != 768 {
		t.Errorf("dimension = %d, want truncated 768", vec.Dimension())
	}
	if mag := vec.Magnitude(); math.Abs(mag-1.0) > 1e-5 {
		t.Errorf("magnitude after truncation = %v, want 1.0", mag)
	}
}

func TestGenerateEmbeddingProviderFailure(t *testing.T) {
	mock := &mockEmbedder{embedErr: errors.New("quota exceeded")}
	client := New(mock, 100, 0)

	_, err := client.GenerateEmbedding(context.Background(), "some text", "model")
	if !errs.IsKind(err, errs.KindExternal) {
		t.Errorf("error = %v, want external kind", err)
	}
}

func TestGenerateEmbeddingEmptyResponse(t *testing.T) {
	mock := &mockEmbedder{returnEmpty: true}
	client := New(mock, 100, 0)

	_, err := client.GenerateEmbedding(context.Background(), "some text", "model")
	if !errs.IsKind(err, errs.KindExternal) {
		t.Errorf("error = %v, want external kind", err)
	}
}

func TestGenerateEmbeddingHonorsCancellation(t *testing.T) {
	mock := &mockEmbedder{embeddings: uniformVector(768, 0.5)}
	// One request per second with an exhausted burst forces the second
	// call to wait on the limiter.
	client := New(mock, 1, 0)

	ctx := context.Background()
	if _, err := client.GenerateEmbedding(ctx, "first", "model"); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err := client.GenerateEmbedding(cancelled, "second", "model")
	if err == nil {
		t.Fatal("expected rate-limit wait to fail under a cancelled context")
	}
	if mock.callCount != 1 {
		t.Errorf("provider called %d times, want 1 (second call never reached it)", mock.callCount)
	}
}
