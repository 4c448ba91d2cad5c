package document

import (
	"time"

	"github.com/google/uuid"

	"github.com/arkivo/arkivo/internal/embedding"
	"github.com/arkivo/arkivo/internal/errs"
)

// EmbeddingState is the lifecycle of a chunk's vector. A chunk starts
// pending, and is either embedded or marked failed during ingestion.
// Only ready chunks are written to the vector store and searchable.
type EmbeddingState int

const (
	EmbeddingPending EmbeddingState = iota
	EmbeddingReady
	EmbeddingFailed
)

// String returns the state name for logs.
func (s EmbeddingState) String() string {
	switch s {
	case EmbeddingPending:
		return "pending"
	case EmbeddingReady:
		return "ready"
	case EmbeddingFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Chunk is one bounded segment of a document's content, owned by its
// Document aggregate. Identity is the chunk id; two chunks with the
// same id are the same chunk regardless of content.
type Chunk struct {
	id         ChunkID
	documentID DocumentID
	content    string
	index      int
	start      int
	end        int
	createdAt  time.Time

	embedState  EmbeddingState
	embed       embedding.Vector
	embedReason string

	// relevanceScore is a query-time annotation set during search
	// result assembly. It is never persisted.
	relevanceScore float32
}

// NewChunk validates positions and creates a pending chunk.
func NewChunk(documentID DocumentID, content string, index, start, end int) (*Chunk, error) {
	if documentID.IsZero() {
		return nil, errs.Validation("chunk requires a document id")
	}
	if content == "" {
		return nil, errs.Validation("chunk content must not be empty")
	}
	if index < 0 {
		return nil, errs.Validationf("chunk index must not be negative, got %d", index)
	}
	if start < 0 {
		return nil, errs.Validationf("chunk start position must not be negative, got %d", start)
	}
	if end <= start {
		return nil, errs.Validationf("chunk end position %d must be after start %d", end, start)
	}

	return &Chunk{
		id:         ChunkID(uuid.New()),
		documentID: documentID,
		content:    content,
		index:      index,
		start:      start,
		end:        end,
		createdAt:  time.Now().UTC(),
		embedState: EmbeddingPending,
	}, nil
}

// RestoreChunk rebuilds a chunk from persisted state. It trusts the
// store and performs no validation beyond the embedding itself.
func RestoreChunk(id ChunkID, documentID DocumentID, content string, index, start, end int,
	createdAt time.Time, embed embedding.Vector, embedReason string) *Chunk {
	c := &Chunk{
		id:         id,
		documentID: documentID,
		content:    content,
		index:      index,
		start:      start,
		end:        end,
		createdAt:  createdAt,
	}
	switch {
	case !embed.IsZero():
		c.embedState = EmbeddingReady
		c.embed = embed
	case embedReason != "":
		c.embedState = EmbeddingFailed
		c.embedReason = embedReason
	default:
		c.embedState = EmbeddingPending
	}
	return c
}

func (c *Chunk) ID() ChunkID            { return c.id }
func (c *Chunk) DocumentID() DocumentID { return c.documentID }
func (c *Chunk) Content() string        { return c.content }
func (c *Chunk) Index() int             { return c.index }
func (c *Chunk) StartPosition() int     { return c.start }
func (c *Chunk) EndPosition() int       { return c.end }
func (c *Chunk) CreatedAt() time.Time   { return c.createdAt }

// EmbeddingState returns the tagged state of the chunk's vector.
func (c *Chunk) EmbeddingState() EmbeddingState { return c.embedState }

// Embedding returns the chunk's vector and whether it is ready.
func (c *Chunk) Embedding() (embedding.Vector, bool) {
	return c.embed, c.embedState == EmbeddingReady
}

// EmbedFailure returns the failure reason for a chunk whose embedding
// could not be generated.
func (c *Chunk) EmbedFailure() string { return c.embedReason }

// MarkEmbedded attaches a generated vector to the chunk.
func (c *Chunk) MarkEmbedded(v embedding.Vector) error {
	if v.IsZero() {
		return errs.Validation("cannot attach a zero embedding")
	}
	c.embedState = EmbeddingReady
	c.embed = v
	c.embedReason = ""
	return nil
}

// MarkEmbedFailed records that embedding generation failed for this
// chunk. The chunk stays attached to its document but is excluded from
// vector storage.
func (c *Chunk) MarkEmbedFailed(reason string) {
	c.embedState = EmbeddingFailed
	c.embed = embedding.Vector{}
	c.embedReason = reason
}

// RelevanceScore returns the query-time score annotation.
func (c *Chunk) RelevanceScore() float32 { return c.relevanceScore }

// WithRelevance returns a shallow copy annotated with a similarity
// score in [0,1]. The receiver is not modified; search results must not
// mutate the loaded aggregate.
func (c *Chunk) WithRelevance(score float32) (*Chunk, error) {
	if score < 0 || score > 1 {
		return nil, errs.Validationf("relevance score %v outside [0,1]", score)
	}
	cp := *c
	cp.relevanceScore = score
	return &cp, nil
}

// Equal reports identity equality by chunk id.
func (c *Chunk) Equal(o *Chunk) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.id == o.id
}
