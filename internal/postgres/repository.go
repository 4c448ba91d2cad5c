package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/embedding"
	"github.com/arkivo/arkivo/internal/errs"
	"github.com/arkivo/arkivo/internal/log"
)

// Repository persists Document aggregates. Saves carry optimistic
// concurrency: an UPDATE guarded by the loaded version, failing with a
// conflict when another writer got there first.
type Repository struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewRepository creates a Repository on the shared pool.
func NewRepository(pool *pgxpool.Pool, logger log.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// Save persists the aggregate and its chunk list in one transaction.
// Chunks are replaced wholesale; the aggregate owns them exclusively,
// so diffing individual rows buys nothing. On success the aggregate's
// version counter is advanced to the stored version.
func (r *Repository) Save(ctx context.Context, doc *document.Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	metadataJSON, err := json.Marshal(doc.Metadata())
	if err != nil {
		return fmt.Errorf("marshaling document metadata: %w", err)
	}

	var processedAt *time.Time
	if at, ok := doc.ProcessedAt(); ok {
		processedAt = &at
	}

	newVersion := doc.Version() + 1
	fi := doc.FileInfo()
	tags := doc.Tags()
	if tags == nil {
		tags = []string{}
	}

	if doc.Version() == 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO documents (id, organization_id, title, content,
				file_name, file_content_type, file_size, metadata, tags,
				status, error_message, processed_at, created_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			uuid.UUID(doc.ID()), uuid.UUID(doc.OrganizationID()), doc.Title(), doc.Content(),
			fi.Name, fi.ContentType, fi.Size, metadataJSON, tags,
			string(doc.Status()), doc.ErrorMessage(), processedAt, doc.CreatedAt(), newVersion)
		if err != nil {
			return fmt.Errorf("inserting document %s: %w", doc.ID(), err)
		}
	} else {
		tag, err := tx.Exec(ctx, `
			UPDATE documents
			SET title = $1, content = $2, metadata = $3, tags = $4,
				status = $5, error_message = $6, processed_at = $7, version = $8
			WHERE id = $9 AND version = $10`,
			doc.Title(), doc.Content(), metadataJSON, tags,
			string(doc.Status()), doc.ErrorMessage(), processedAt, newVersion,
			uuid.UUID(doc.ID()), doc.Version())
		if err != nil {
			return fmt.Errorf("updating document %s: %w", doc.ID(), err)
		}
		if tag.RowsAffected() == 0 {
			return errs.Conflictf("document %s version %d is stale", doc.ID(), doc.Version())
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`,
		uuid.UUID(doc.ID())); err != nil {
		return fmt.Errorf("clearing chunks for document %s: %w", doc.ID(), err)
	}

	batch := &pgx.Batch{}
	for _, c := range doc.Chunks() {
		var vec *pgvector.Vector
		if v, ok := c.Embedding(); ok {
			pv := pgvector.NewVector(v.Components())
			vec = &pv
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, content, chunk_index,
				start_position, end_position, embedding, embed_failure, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.UUID(c.ID()), uuid.UUID(c.DocumentID()), c.Content(), c.Index(),
			c.StartPosition(), c.EndPosition(), vec, c.EmbedFailure(), c.CreatedAt())
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting chunks for document %s: %w", doc.ID(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing save for document %s: %w", doc.ID(), err)
	}

	doc.SetVersion(newVersion)
	return nil
}

// FindByID loads a document with its chunks.
func (r *Repository) FindByID(ctx context.Context, id document.DocumentID) (*document.Document, error) {
	return r.find(ctx, `
		SELECT id, organization_id, title, content, file_name,
			file_content_type, file_size, metadata, tags, status,
			error_message, processed_at, created_at, version
		FROM documents WHERE id = $1`, uuid.UUID(id))
}

// FindByIDAndOrganization loads a document scoped to a tenant. A
// document owned by another organization is reported as not found, so
// callers cannot distinguish "absent" from "not yours".
func (r *Repository) FindByIDAndOrganization(ctx context.Context,
	id document.DocumentID, org document.OrganizationID) (*document.Document, error) {
	return r.find(ctx, `
		SELECT id, organization_id, title, content, file_name,
			file_content_type, file_size, metadata, tags, status,
			error_message, processed_at, created_at, version
		FROM documents WHERE id = $1 AND organization_id = $2`,
		uuid.UUID(id), uuid.UUID(org))
}

func (r *Repository) find(ctx context.Context, query string, args ...any) (*document.Document, error) {
	var (
		id, orgID     uuid.UUID
		title         string
		content       string
		fileName      string
		fileType      string
		fileSize      int64
		metadataJSON  []byte
		tags          []string
		status        string
		errorMessage  string
		processedAt   *time.Time
		createdAt     time.Time
		version       int64
	)

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&id, &orgID, &title, &content, &fileName, &fileType, &fileSize,
		&metadataJSON, &tags, &status, &errorMessage, &processedAt, &createdAt, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("document %s not found", args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}

	if !document.Status(status).Valid() {
		return nil, fmt.Errorf("document %s has unknown status %q", id, status)
	}

	var metadata map[string]string
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata for document %s: %w", id, err)
		}
	}

	chunks, err := r.loadChunks(ctx, document.DocumentID(id))
	if err != nil {
		return nil, err
	}

	return document.Restore(
		document.DocumentID(id), document.OrganizationID(orgID), title, content,
		document.FileInfo{Name: fileName, ContentType: fileType, Size: fileSize},
		metadata, tags, createdAt, document.Status(status),
		chunks, processedAt, errorMessage, version), nil
}

func (r *Repository) loadChunks(ctx context.Context, docID document.DocumentID) ([]*document.Chunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, content, chunk_index, start_position, end_position,
			embedding, embed_failure, created_at
		FROM chunks WHERE document_id = $1
		ORDER BY chunk_index`, uuid.UUID(docID))
	if err != nil {
		return nil, fmt.Errorf("loading chunks for document %s: %w", docID, err)
	}
	defer rows.Close()

	var chunks []*document.Chunk
	for rows.Next() {
		var (
			id           uuid.UUID
			content      string
			index        int
			start, end   int
			vec          *pgvector.Vector
			embedFailure string
			createdAt    time.Time
		)
		if err := rows.Scan(&id, &content, &index, &start, &end,
			&vec, &embedFailure, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk for document %s: %w", docID, err)
		}

		var embed embedding.Vector
		if vec != nil {
			embed, err = embedding.New(vec.Slice())
			if err != nil {
				return nil, fmt.Errorf("restoring embedding for chunk %s: %w", id, err)
			}
		}

		chunks = append(chunks, document.RestoreChunk(
			document.ChunkID(id), docID, content, index, start, end,
			createdAt, embed, embedFailure))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks for document %s: %w", docID, err)
	}
	return chunks, nil
}

// Delete removes a document; chunks cascade at the schema level.
func (r *Repository) Delete(ctx context.Context, id document.DocumentID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("document %s not found", id)
	}
	return nil
}

// ListByOrganization returns a tenant's documents without chunks,
// newest first. limit caps the result; 0 means the default of 100.
func (r *Repository) ListByOrganization(ctx context.Context,
	org document.OrganizationID, limit int) ([]*document.Document, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, title, content, file_name,
			file_content_type, file_size, metadata, tags, status,
			error_message, processed_at, created_at, version
		FROM documents WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, uuid.UUID(org), limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents for organization %s: %w", org, err)
	}
	defer rows.Close()

	var docs []*document.Document
	for rows.Next() {
		var (
			id, orgID    uuid.UUID
			title        string
			content      string
			fileName     string
			fileType     string
			fileSize     int64
			metadataJSON []byte
			tags         []string
			status       string
			errorMessage string
			processedAt  *time.Time
			createdAt    time.Time
			version      int64
		)
		if err := rows.Scan(&id, &orgID, &title, &content, &fileName, &fileType,
			&fileSize, &metadataJSON, &tags, &status, &errorMessage,
			&processedAt, &createdAt, &version); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if !document.Status(status).Valid() {
			return nil, fmt.Errorf("document %s has unknown status %q", id, status)
		}

		var metadata map[string]string
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata for document %s: %w", id, err)
			}
		}

		docs = append(docs, document.Restore(
			document.DocumentID(id), document.OrganizationID(orgID), title, content,
			document.FileInfo{Name: fileName, ContentType: fileType, Size: fileSize},
			metadata, tags, createdAt, document.Status(status),
			nil, processedAt, errorMessage, version))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents for organization %s: %w", org, err)
	}
	return docs, nil
}
