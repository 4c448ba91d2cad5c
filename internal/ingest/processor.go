// Package ingest orchestrates document processing: chunking the
// content, embedding each chunk over a bounded worker pool, writing
// embeddings to the vector store in one batch, and driving the
// document's state machine with events published after each durable
// save.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/arkivo/arkivo/internal/chunking"
	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/errs"
	"github.com/arkivo/arkivo/internal/event"
	"github.com/arkivo/arkivo/internal/log"
)

// DefaultEmbedConcurrency bounds the per-chunk embedding fan-out so a
// large document cannot overload the embedding provider.
const DefaultEmbedConcurrency = 4

// conflictRetries bounds the reload-and-retry loop when two triggers
// race on the same document.
const conflictRetries = 3

// Config tunes the processor.
type Config struct {
	// Chunking parameters applied to every document.
	Chunking chunking.Parameters

	// EmbedModel names the embedding model passed to the Embedder.
	EmbedModel string

	// EmbedConcurrency is the worker-pool size for per-chunk embedding
	// calls. Zero means DefaultEmbedConcurrency.
	EmbedConcurrency int
}

// Processor is the ingestion use case. It is stateless and safe for
// concurrent use; independent documents are processed with no
// cross-document coordination.
type Processor struct {
	repo      DocumentRepository
	embedder  Embedder
	vectors   VectorStore
	publisher event.Publisher
	corpus    CorpusVersioner
	logger    log.Logger
	cfg       Config
}

// NewProcessor wires the ingestion use case. corpus may be nil when no
// search cache is attached.
func NewProcessor(repo DocumentRepository, embedder Embedder, vectors VectorStore,
	publisher event.Publisher, corpus CorpusVersioner, logger log.Logger, cfg Config) *Processor {
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if cfg.Chunking == (chunking.Parameters{}) {
		cfg.Chunking = chunking.DefaultParameters()
	}
	return &Processor{
		repo:      repo,
		embedder:  embedder,
		vectors:   vectors,
		publisher: publisher,
		corpus:    corpus,
		logger:    logger,
		cfg:       cfg,
	}
}

// Create validates and persists a new pending document, publishing the
// creation event after the save commits.
func (p *Processor) Create(ctx context.Context, orgID document.OrganizationID,
	title, content string, fileInfo document.FileInfo,
	metadata map[string]string, tags []string) (*document.Document, error) {

	doc, created, err := document.NewDocument(orgID, title, content, fileInfo, metadata, tags)
	if err != nil {
		return nil, err
	}
	if err := p.repo.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving new document: %w", err)
	}
	p.publisher.Publish(ctx, created)

	p.logger.Info("document created",
		"document_id", doc.ID().String(),
		"organization_id", orgID.String(),
		"size", len(content))
	return doc, nil
}

// Process runs the full ingestion pipeline for a pending document.
//
// A failure embedding an individual chunk is recovered locally: the
// chunk is kept without an embedding and excluded from vector storage,
// and the document still completes. Any other failure marks the
// document failed and is surfaced to the caller.
func (p *Processor) Process(ctx context.Context, id document.DocumentID) (*document.Document, error) {
	doc, err := p.startWithRetry(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := p.runPipeline(ctx, doc); err != nil {
		p.markFailed(ctx, doc, err)
		return nil, fmt.Errorf("processing document %s: %w", id, err)
	}

	if p.corpus != nil {
		p.corpus.Bump()
	}
	return doc, nil
}

// Retry moves a failed document back to pending and processes it
// again. Vectors stored by the earlier attempt are removed before the
// new ones are written, so the index never accumulates stale entries.
func (p *Processor) Retry(ctx context.Context, id document.DocumentID) (*document.Document, error) {
	doc, err := p.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := doc.RetryProcessing()
	if err != nil {
		return nil, err
	}
	if err := p.repo.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving retried document: %w", err)
	}
	p.publisher.Publish(ctx, events...)

	return p.Process(ctx, id)
}

// Archive retires a completed document. It stays in the corpus store
// but its vectors are removed so it no longer matches searches.
func (p *Processor) Archive(ctx context.Context, id document.DocumentID) (*document.Document, error) {
	doc, err := p.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := doc.Archive()
	if err != nil {
		return nil, err
	}
	if err := p.vectors.DeleteByDocument(ctx, id); err != nil {
		return nil, errs.External("removing archived document vectors", err)
	}
	if err := p.repo.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving archived document: %w", err)
	}
	p.publisher.Publish(ctx, events...)

	if p.corpus != nil {
		p.corpus.Bump()
	}
	return doc, nil
}

// Delete removes a document and its vectors.
func (p *Processor) Delete(ctx context.Context, id document.DocumentID) error {
	if _, err := p.repo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := p.vectors.DeleteByDocument(ctx, id); err != nil {
		return errs.External("removing document vectors", err)
	}
	if err := p.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if p.corpus != nil {
		p.corpus.Bump()
	}
	return nil
}

// startWithRetry loads the document, validates the precondition, and
// commits the pending → processing transition. A conflict on the save
// means another trigger raced us: reload and re-check with backoff
// instead of overwriting.
func (p *Processor) startWithRetry(ctx context.Context, id document.DocumentID) (*document.Document, error) {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond)), conflictRetries)

	var doc *document.Document
	operation := func() error {
		var err error
		doc, err = p.repo.FindByID(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !doc.CanBeProcessed() {
			return backoff.Permanent(errs.InvalidStatef(
				"document %s is %s and cannot be processed", id, doc.Status()))
		}

		events, err := doc.StartProcessing()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := p.repo.Save(ctx, doc); err != nil {
			if errs.IsKind(err, errs.KindConflict) {
				p.logger.Debug("concurrent trigger detected, reloading",
					"document_id", id.String())
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		p.publisher.Publish(ctx, events...)
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return doc, nil
}

// runPipeline performs chunking, embedding, vector storage, and the
// completion transition. Any error is a whole-pipeline failure.
func (p *Processor) runPipeline(ctx context.Context, doc *document.Document) error {
	pieces, err := chunking.Split(doc.Content(), p.cfg.Chunking)
	if err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if len(pieces) == 0 {
		return errs.Validation("document content produced no chunks")
	}

	chunks := make([]*document.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunk, err := document.NewChunk(doc.ID(), piece.Text, i, piece.Start, piece.End)
		if err != nil {
			return fmt.Errorf("building chunk %d: %w", i, err)
		}
		chunks = append(chunks, chunk)
	}

	if err := p.embedChunks(ctx, chunks); err != nil {
		return err
	}

	embedded := make([]*document.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := c.Embedding(); ok {
			embedded = append(embedded, c)
		}
	}

	// Drop vectors from any earlier attempt unconditionally: a retry
	// that embeds nothing must still clear the old entries, or the
	// index keeps hits for chunks that no longer exist.
	if err := p.vectors.DeleteByDocument(ctx, doc.ID()); err != nil {
		return errs.External("clearing stale vectors", err)
	}

	if len(embedded) > 0 {
		// Write the new set in a single batched call.
		if err := p.vectors.StoreEmbeddings(ctx, doc, embedded); err != nil {
			return errs.External("storing embeddings", err)
		}
	} else {
		p.logger.Warn("no chunks obtained embeddings, document will not be searchable",
			"document_id", doc.ID().String(),
			"chunks", len(chunks))
	}

	events, err := doc.CompleteProcessing(chunks)
	if err != nil {
		return err
	}
	if err := p.repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("saving completed document: %w", err)
	}
	p.publisher.Publish(ctx, events...)

	p.logger.Info("document processed",
		"document_id", doc.ID().String(),
		"chunks", len(chunks),
		"embedded", len(embedded))
	return nil
}

// embedChunks fans the per-chunk embedding calls out over a bounded
// worker pool. Individual failures are recorded on the chunk and never
// abort the document; only context cancellation stops the pipeline.
func (p *Processor) embedChunks(ctx context.Context, chunks []*document.Chunk) error {
	g := &errgroup.Group{}
	g.SetLimit(p.cfg.EmbedConcurrency)

	for _, chunk := range chunks {
		g.Go(func() error {
			vec, err := p.embedder.GenerateEmbedding(ctx, chunk.Content(), p.cfg.EmbedModel)
			if err != nil {
				p.logger.Warn("chunk embedding failed, continuing without it",
					"document_id", chunk.DocumentID().String(),
					"chunk_index", chunk.Index(),
					"error", err)
				chunk.MarkEmbedFailed(err.Error())
				return nil
			}
			return chunk.MarkEmbedded(vec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// Distinguish "provider rejected every chunk" from "the caller
	// cancelled us": cancellation is a pipeline failure.
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// markFailed records a whole-pipeline failure on the document. If the
// failure itself cannot be saved, the secondary error is logged and
// swallowed so the original error still reaches the caller.
func (p *Processor) markFailed(ctx context.Context, doc *document.Document, cause error) {
	events, err := doc.FailProcessing(cause.Error())
	if err != nil {
		p.logger.Error("could not mark document failed",
			"document_id", doc.ID().String(),
			"error", err,
			"cause", cause)
		return
	}
	if err := p.repo.Save(ctx, doc); err != nil {
		p.logger.Error("could not save failed document state",
			"document_id", doc.ID().String(),
			"error", err,
			"cause", cause)
		return
	}
	p.publisher.Publish(ctx, events...)
}
