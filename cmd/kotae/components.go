package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/snapshot"
	"github.com/hyperjump/kotae/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Logger    *zap.Logger
	Blobs     blob.Store
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Generator generation.Generator
	Sessions  *session.Registry
	Metrics   *metrics.Metrics
	Indexer   *indexer.Indexer
	RAG       *rag.Service

	// QueryEmbedder embeds questions: Embedder behind the question cache, so chunk texts
	// from ingestion never evict repeated questions.
	QueryEmbedder embedding.Embedder
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	blobs, err := newBlobStore(cfg.Storage.Blob)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	store, err := newMetadataStore(cfg.Storage.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder := newEmbedder(cfg.Embedding, logger)
	queryEmbedder := embedding.NewCached(embedder, cfg.Embedding.CacheSize)
	generator := newGenerator(cfg.Generation, logger)
	m := metrics.New()
	sessions := session.NewRegistry()
	snapshots := snapshot.NewStore(blobs, logger)

	extractor := extract.NewExtractor(extract.WithLogger(logger))
	idx := indexer.NewIndexer(store, blobs, snapshots, sessions, embedder, extractor,
		indexer.WithLogger(logger),
		indexer.WithMetrics(m),
		indexer.WithChunkSize(cfg.RAG.ChunkSize),
		indexer.WithPreviewChunkSize(cfg.RAG.PreviewChunkSize),
		indexer.WithConcurrency(cfg.Embedding.Concurrency),
	)
	svc := rag.NewService(sessions, store, queryEmbedder, generator,
		rag.WithLogger(logger),
		rag.WithMetrics(m),
		rag.WithTopK(cfg.RAG.TopK),
		rag.WithMinQuoteLength(cfg.RAG.MinQuoteLength),
	)

	logger.Debug("components initialized",
		zap.String("blob_driver", cfg.Storage.Blob.Driver),
		zap.String("metadata_driver", cfg.Storage.Metadata.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("generation_provider", cfg.Generation.Provider))

	return &Components{
		Config:        cfg,
		Logger:        logger,
		Blobs:         blobs,
		Storage:       store,
		Embedder:      embedder,
		Generator:     generator,
		Sessions:      sessions,
		Metrics:       m,
		Indexer:       idx,
		RAG:           svc,
		QueryEmbedder: queryEmbedder,
	}, nil
}

func newBlobStore(cfg config.BlobConfig) (blob.Store, error) {
	switch cfg.Driver {
	case "s3":
		s3, err := blob.NewS3Store(context.Background(), blob.S3Options{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		fs, err := blob.NewFSStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
}

func newMetadataStore(cfg config.MetadataConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := storage.NewPostgresStorage(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		lite, err := storage.NewSQLiteStorage(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return lite, nil
	}
}

func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) embedding.Embedder {
	var e embedding.Embedder
	switch cfg.Provider {
	case "mock":
		logger.Warn("using mock embedder; answers will not be meaningful", zap.Int("dimensions", cfg.Dimensions))
		e = embedding.NewMockEmbedder(cfg.Dimensions)
	default:
		e = embedding.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout,
			embedding.WithLogger(logger),
			embedding.WithRateLimit(cfg.RequestsPerSecond),
		)
	}
	return e
}

func newGenerator(cfg config.GenerationConfig, logger *zap.Logger) generation.Generator {
	if cfg.Provider == "static" {
		return generation.Static{Answer: cfg.StaticAnswer}
	}
	return generation.NewOpenAIGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout, generation.WithLogger(logger))
}
