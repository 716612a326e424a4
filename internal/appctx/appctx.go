// Package appctx builds the process scoped dependencies once and hands them
// to the commands.
package appctx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/ai"
	"github.com/xxxsen/policyrag/internal/chunker"
	"github.com/xxxsen/policyrag/internal/config"
	"github.com/xxxsen/policyrag/internal/db"
	"github.com/xxxsen/policyrag/internal/extract"
	"github.com/xxxsen/policyrag/internal/filestore"
	"github.com/xxxsen/policyrag/internal/ingest"
	"github.com/xxxsen/policyrag/internal/queue"
	"github.com/xxxsen/policyrag/internal/repo"
	"github.com/xxxsen/policyrag/internal/rerank"
	"github.com/xxxsen/policyrag/internal/retrieval"
	"github.com/xxxsen/policyrag/internal/vectorindex"
	"github.com/xxxsen/policyrag/internal/workpool"
)

type App struct {
	Config     *config.Config
	DB         *sql.DB
	Store      filestore.Store
	Index      vectorindex.Index
	Reranker   rerank.Reranker
	Embedder   ai.IEmbedder
	AI         *ai.Manager
	Chunker    *chunker.Chunker
	Extractor  *extract.Extractor
	Pool       *workpool.Pool
	JobRepo    *repo.IngestJobRepo
	CacheRepo  *repo.EmbeddingCacheRepo
	Retrieval  *retrieval.Pipeline
	Ingest     *ingest.Pipeline
	Dispatcher *queue.Dispatcher
	Worker     *queue.Worker

	closers []func() error
}

// New connects to every dependency and loads the rerank model. Any failure
// closes what was already opened.
func New(ctx context.Context, cfg *config.Config) (app *App, err error) {
	logger := logutil.GetLogger(ctx)
	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	app.DB, err = db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	app.closers = append(app.closers, app.DB.Close)
	if err = db.ApplyMigrations(ctx, app.DB); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	app.JobRepo = repo.NewIngestJobRepo(app.DB)
	app.CacheRepo = repo.NewEmbeddingCacheRepo(app.DB)

	if app.Store, err = filestore.New(cfg.FileStore); err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	if app.Embedder, err = buildEmbedder(cfg, app.CacheRepo); err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}
	if generator == nil {
		logger.Warn("no generation provider configured, chat answers are unavailable")
	}
	app.AI = ai.NewManager(generator, app.Embedder, ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	})

	app.Index, err = vectorindex.New(ctx, cfg.VectorIndex.Type, vectorindex.Options{
		DB:         app.DB,
		Table:      cfg.VectorIndex.Table,
		Dimension:  cfg.VectorIndex.Dimension,
		SQLitePath: cfg.VectorIndex.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("init vector index: %w", err)
	}
	app.closers = append(app.closers, app.Index.Close)

	start := time.Now()
	app.Reranker, err = rerank.New(ctx, cfg.Rerank.Type, rerank.Options{
		ModelName:    cfg.Rerank.ModelName,
		ModelDir:     cfg.Rerank.ModelDir,
		OnnxFilePath: cfg.Rerank.OnnxFilePath,
		Endpoint:     cfg.Rerank.Endpoint,
		Model:        cfg.Rerank.Model,
		APIKey:       cfg.Rerank.APIKey,
		TimeoutSec:   cfg.Rerank.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init reranker: %w", err)
	}
	app.closers = append(app.closers, app.Reranker.Close)
	logger.Info("reranker ready",
		zap.String("type", cfg.Rerank.Type),
		zap.String("model", app.Reranker.ModelName()),
		zap.Duration("cold_start", time.Since(start)),
	)

	if app.Chunker, err = buildChunker(cfg.Chunking); err != nil {
		return nil, err
	}
	app.Extractor = extract.New()
	app.Pool = workpool.New(cfg.Retrieval.PoolSize)

	app.Retrieval, err = retrieval.New(app.Embedder, app.Index, app.Reranker, app.Pool,
		retrieval.WithInitialTopK(cfg.Retrieval.InitialTopK),
		retrieval.WithMaxTopK(cfg.Retrieval.MaxTopK),
		retrieval.WithTimeout(time.Duration(cfg.Retrieval.Timeout)*time.Second),
	)
	if err != nil {
		return nil, err
	}
	app.Ingest, err = ingest.New(
		ingest.NewStoreFetcher(app.Store, cfg.HTTP.MaxUploadBytes),
		app.Extractor,
		app.Chunker,
		app.Embedder,
		app.Index,
	)
	if err != nil {
		return nil, err
	}
	app.Dispatcher = queue.NewDispatcher(app.JobRepo, cfg.Worker.MaxAttempts)
	app.Worker = queue.NewWorker(app.JobRepo, app.Ingest, queue.WorkerConfig{
		Concurrency: cfg.Worker.Concurrency,
		BackoffBase: time.Duration(cfg.Worker.BackoffBaseSeconds) * time.Second,
		JobTimeout:  time.Duration(cfg.Worker.JobTimeoutSeconds) * time.Second,
		StaleAfter:  time.Duration(cfg.Worker.StaleAfterSeconds) * time.Second,
	})

	logger.Info("application context ready",
		zap.String("vector_index", cfg.VectorIndex.Type),
		zap.String("embed_model", app.Embedder.ModelName()),
		zap.String("file_store", app.Store.Type()),
	)
	return app, nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildChunker(cfg config.ChunkingConfig) (*chunker.Chunker, error) {
	var opts []chunker.Option
	if len(cfg.Separators) > 0 {
		opts = append(opts, chunker.WithSeparators(cfg.Separators...))
	}
	return chunker.New(cfg.ChunkSize, cfg.ChunkOverlap, opts...)
}
