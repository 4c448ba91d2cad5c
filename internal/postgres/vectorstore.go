package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/log"
	"github.com/arkivo/arkivo/internal/search"
)

// VectorStore is the pgvector-backed vector index. Vectors live in
// their own table, denormalized with the owning organization and tags,
// so tenant filtering happens inside the ANN query instead of after
// it.
type VectorStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewVectorStore creates a VectorStore on the shared pool.
func NewVectorStore(pool *pgxpool.Pool, logger log.Logger) *VectorStore {
	return &VectorStore{pool: pool, logger: logger}
}

// StoreEmbeddings writes the chunks' vectors in one batch. Chunks
// without a ready embedding are skipped. Upsert keeps retried
// ingestions idempotent at the row level.
func (s *VectorStore) StoreEmbeddings(ctx context.Context, doc *document.Document,
	chunks []*document.Chunk) error {
	tags := doc.Tags()
	if tags == nil {
		tags = []string{}
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		vec, ok := c.Embedding()
		if !ok {
			continue
		}
		batch.Queue(`
			INSERT INTO chunk_vectors (chunk_id, document_id, organization_id, tags, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (chunk_id) DO UPDATE
			SET document_id = EXCLUDED.document_id,
				organization_id = EXCLUDED.organization_id,
				tags = EXCLUDED.tags,
				embedding = EXCLUDED.embedding`,
			uuid.UUID(c.ID()), uuid.UUID(doc.ID()), uuid.UUID(doc.OrganizationID()),
			tags, pgvector.NewVector(vec.Components()))
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("storing %d chunk vectors for document %s: %w",
			batch.Len(), doc.ID(), err)
	}

	s.logger.Debug("stored chunk vectors",
		"document_id", doc.ID().String(), "count", batch.Len())
	return nil
}

// DeleteByDocument removes every vector belonging to the document.
func (s *VectorStore) DeleteByDocument(ctx context.Context, id document.DocumentID) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM chunk_vectors WHERE document_id = $1`, uuid.UUID(id)); err != nil {
		return fmt.Errorf("deleting vectors for document %s: %w", id, err)
	}
	return nil
}

// DeleteByOrganization removes a whole tenant's vectors.
func (s *VectorStore) DeleteByOrganization(ctx context.Context, org document.OrganizationID) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM chunk_vectors WHERE organization_id = $1`, uuid.UUID(org)); err != nil {
		return fmt.Errorf("deleting vectors for organization %s: %w", org, err)
	}
	return nil
}

// SearchVectors runs a tenant-scoped cosine search. The score returned
// is 1 - cosine distance, so identical vectors score 1.
func (s *VectorStore) SearchVectors(ctx context.Context, q search.VectorQuery) ([]search.VectorHit, error) {
	// Empty slices, not nil: cardinality(NULL) is NULL and would make
	// the filter swallow every row.
	excluded := make([]uuid.UUID, 0, len(q.ExcludedDocumentIDs))
	for _, id := range q.ExcludedDocumentIDs {
		excluded = append(excluded, uuid.UUID(id))
	}
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}

	queryVec := pgvector.NewVector(q.Embedding.Components())
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, document_id, 1 - (embedding <=> $1) AS score
		FROM chunk_vectors
		WHERE organization_id = $2
			AND (cardinality($3::uuid[]) = 0 OR document_id != ALL($3))
			AND (cardinality($4::text[]) = 0 OR tags @> $4)
			AND 1 - (embedding <=> $1) >= $5
		ORDER BY embedding <=> $1
		LIMIT $6`,
		queryVec, uuid.UUID(q.OrganizationID),
		excluded, tags, q.MinScore, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	defer rows.Close()

	var hits []search.VectorHit
	for rows.Next() {
		var (
			chunkID uuid.UUID
			docID   uuid.UUID
			score   float64
		)
		if err := rows.Scan(&chunkID, &docID, &score); err != nil {
			return nil, fmt.Errorf("scanning vector hit: %w", err)
		}
		hits = append(hits, search.VectorHit{
			DocumentID: document.DocumentID(docID),
			ChunkID:    document.ChunkID(chunkID),
			Score:      float32(score),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector hits: %w", err)
	}
	return hits, nil
}
