// Package testutil provides in-memory fakes for the ingestion and
// search ports: a deterministic embedder, a versioned document
// repository, and a brute-force vector store. They exist so use-case
// tests run without Postgres, Qdrant, or an embedding provider.
package testutil

import (
	"context"
	"crypto/sha256"
	"strings"
	"sync"

	"github.com/arkivo/arkivo/internal/embedding"
	"github.com/arkivo/arkivo/internal/errs"
)

// MockEmbedder is a deterministic Embedder: the same text always maps
// to the same vector, and different texts almost surely differ. It
// tracks call counts and the maximum number of concurrent calls so
// tests can assert on the worker-pool bound.
type MockEmbedder struct {
	// FailSubstring makes embedding fail for any text containing it.
	FailSubstring string

	// Err, when set, fails every call.
	Err error

	// Delay gate: when non-nil, calls block until it is closed.
	Block chan struct{}

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
}

// GenerateEmbedding implements the Embedder port.
func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text, _ string) (embedding.Vector, error) {
	m.mu.Lock()
	m.calls++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return embedding.Vector{}, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return embedding.Vector{}, err
	}
	if m.Err != nil {
		return embedding.Vector{}, m.Err
	}
	if strings.TrimSpace(text) == "" {
		return embedding.Vector{}, errs.Validation("cannot embed blank text")
	}
	if m.FailSubstring != "" && strings.Contains(text, m.FailSubstring) {
		return embedding.Vector{}, errs.External("embedding provider rejected text", nil)
	}

	return DeterministicVector(text), nil
}

// Calls returns how many times GenerateEmbedding was invoked.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MaxInFlight returns the peak number of concurrent calls observed.
func (m *MockEmbedder) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// VectorDimension matches the vector(768) schema columns so the fakes
// interoperate with the real stores in integration tests.
const VectorDimension = 768

// DeterministicVector hashes text into a valid vector of
// VectorDimension components. Equal inputs produce equal vectors.
func DeterministicVector(text string) embedding.Vector {
	sum := sha256.Sum256([]byte(text))
	components := make([]float32, VectorDimension)
	for i := range components {
		b := sum[i%len(sum)]
		components[i] = float32(int(b)+i%7) / 255
	}
	v, err := embedding.New(components)
	if err != nil {
		// The construction above is always valid.
		panic(err)
	}
	return v
}
