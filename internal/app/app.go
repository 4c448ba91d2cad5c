// Package app wires the application together: configuration, database
// pool and migrations, the embedding client, the vector store backend,
// and the ingestion and search use cases. Commands call Setup once and
// work against the assembled App.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkivo/arkivo/db"
	"github.com/arkivo/arkivo/internal/chunking"
	"github.com/arkivo/arkivo/internal/config"
	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/embedder"
	"github.com/arkivo/arkivo/internal/event"
	"github.com/arkivo/arkivo/internal/ingest"
	"github.com/arkivo/arkivo/internal/log"
	"github.com/arkivo/arkivo/internal/postgres"
	"github.com/arkivo/arkivo/internal/qdrant"
	"github.com/arkivo/arkivo/internal/search"
)

// VectorStore is the union of the ingestion write port and the search
// read port. Both backends satisfy it.
type VectorStore interface {
	StoreEmbeddings(ctx context.Context, doc *document.Document, chunks []*document.Chunk) error
	DeleteByDocument(ctx context.Context, id document.DocumentID) error
	DeleteByOrganization(ctx context.Context, org document.OrganizationID) error
	SearchVectors(ctx context.Context, q search.VectorQuery) ([]search.VectorHit, error)
}

// App holds the assembled application.
type App struct {
	Config     *config.Config
	Logger     log.Logger
	Pool       *pgxpool.Pool
	Repository *postgres.Repository
	Vectors    VectorStore
	Processor  *ingest.Processor
	Searcher   *search.Cache
	Corpus     *search.Corpus

	publisher *event.Async
	closers   []func() error
}

// Setup runs migrations and builds the full dependency graph.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	a.Repository = postgres.NewRepository(pool, logger)

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		a.close()
		return nil, errors.New("initializing genkit with the googlegenai plugin")
	}
	embedClient := embedder.New(
		googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel),
		cfg.EmbedderRateLimit, cfg.EmbedderDimension)

	vectors, err := a.setupVectorStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.Vectors = vectors

	a.publisher = event.NewAsync(event.NewLogSink(logger), logger)
	a.closers = append(a.closers, func() error {
		a.publisher.Close()
		return nil
	})

	a.Corpus = &search.Corpus{}
	a.Processor = ingest.NewProcessor(a.Repository, embedClient, vectors,
		a.publisher, a.Corpus, logger, ingest.Config{
			Chunking: chunking.Parameters{
				MaxSize:            cfg.ChunkMaxSize,
				Overlap:            cfg.ChunkOverlap,
				MinSize:            cfg.ChunkMinSize,
				PreserveSentences:  cfg.ChunkByUnits,
				PreserveParagraphs: cfg.ChunkByUnits,
			},
			EmbedModel:       cfg.EmbedderModel,
			EmbedConcurrency: cfg.EmbedderConcurrency,
		})

	inner := search.NewSearcher(embedClient, vectors, a.Repository, logger, cfg.EmbedderModel)
	a.Searcher = search.NewCache(inner, a.Corpus,
		cfg.CacheMaxEntries, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	logger.Info("application assembled",
		"vector_store", cfg.VectorStore,
		"embedder_model", cfg.EmbedderModel,
		"embedder_dimension", cfg.EmbedderDimension)
	return a, nil
}

func (a *App) setupVectorStore(ctx context.Context) (VectorStore, error) {
	switch a.Config.VectorStore {
	case config.VectorStoreQdrant:
		addr := fmt.Sprintf("%s:%d", a.Config.Qdrant.Host, a.Config.Qdrant.Port)
		store, err := qdrant.New(ctx, addr, a.Config.Qdrant.Collection,
			a.Config.Qdrant.APIKey, a.Config.EmbedderDimension,
			a.Config.Qdrant.UseTLS, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return postgres.NewVectorStore(a.Pool, a.Logger), nil
	}
}

// Close releases all resources in reverse construction order.
func (a *App) Close() error {
	return a.close()
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
