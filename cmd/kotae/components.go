package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/catalog"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/continuity"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/ollama"
	"github.com/hyperjump/kotae/internal/qa"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
)

// Components holds initialized services.
type Components struct {
	Storage   storage.CatalogStore
	Embedder  embedding.Embedder
	Index     *indexer.Manager
	Sessions  session.Store
	Generator generation.Generator
	Engine    *continuity.Engine
	QA        *qa.Service
}

func (c *Components) Close() {
	if c.Sessions != nil {
		_ = c.Sessions.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// diskPaths are the files whose size is reported by status.
func diskPaths(cfg *config.Config) []string {
	paths := []string{cfg.Index.Path}
	if cfg.Storage.Driver == storage.DriverSQLite {
		paths = append(paths, cfg.Storage.DatabasePath)
	}
	return paths
}

// newEmbedder builds the configured embedder wrapped in a query cache and
// returns it with the ID persisted indexes are checked against. A model that
// cannot be loaded or is missing on the server is an error.
func newEmbedder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (embedding.Embedder, string, error) {
	ec := cfg.Embedding
	var inner embedding.Embedder
	switch ec.Backend {
	case "ollama":
		client := ollama.NewClient(cfg.Generation.URL, ollama.WithTimeout(cfg.Generation.Timeout))
		e, err := embedding.NewOllamaEmbedder(client, ec.Model, ec.Dimensions)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		if err := e.CheckModel(ctx); err != nil {
			return nil, "", fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		inner = e
	case "mock":
		logger.Warn("using mock embedder; search quality is for testing only",
			zap.Int("dimensions", ec.Dimensions))
		inner = embedding.NewMockEmbedder(ec.Dimensions)
	default:
		e, err := embedding.NewONNXEmbedder(embedding.ONNXOptions{
			ModelPath:         ec.ModelPath,
			Dimensions:        ec.Dimensions,
			MaxTokens:         ec.MaxTokens,
			SharedLibraryPath: ec.SharedLibraryPath,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to load onnx model %s: %w", ec.ModelPath, err)
		}
		inner = e
	}
	if ec.CacheSize > 0 {
		return embedding.NewCachedEmbedder(inner, ec.CacheSize), ec.ID(), nil
	}
	return inner, ec.ID(), nil
}

func newSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, error) {
	opts := session.Options{
		Timeout:       cfg.Session.Timeout,
		MaxHistory:    cfg.Session.MaxHistory,
		SweepInterval: cfg.Session.SweepInterval,
	}
	if cfg.Session.Backend == "redis" {
		store, err := session.NewRedisStore(ctx, cfg.Session.RedisAddr, cfg.Session.RedisPassword, cfg.Session.RedisDB, opts, session.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis sessions: %w", err)
		}
		return store, nil
	}
	return session.NewMemoryStore(opts, session.WithLogger(logger)), nil
}

// openCatalog opens only the catalog store, for commands that do not search.
func openCatalog(ctx context.Context, cfg *config.Config) (storage.CatalogStore, error) {
	store, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// seedCatalog imports every file already in the drop folder, so a fresh
// install can start from it. Files that fail to parse are logged and skipped.
func seedCatalog(ctx context.Context, cfg *config.Config, im catalogImporter, logger *zap.Logger) (int, error) {
	paths, err := watcher.ExistingFiles(cfg.Catalog.WatchDir, cfg.Catalog.Extensions)
	if err != nil {
		return 0, fmt.Errorf("failed to read drop folder: %w", err)
	}
	total := 0
	for _, p := range paths {
		n, err := im.Import(ctx, p)
		if err != nil {
			logger.Warn("catalog import failed", zap.String("path", p), zap.Error(err))
			continue
		}
		total += n
	}
	if len(paths) > 0 {
		logger.Info("drop folder imported",
			zap.String("dir", cfg.Catalog.WatchDir),
			zap.Int("files", len(paths)),
			zap.Int("items_written", total))
	}
	return total, nil
}

// initializeComponents wires the full question answering stack and activates
// the index, loading it from disk when it matches the catalog. Files already in
// the drop folder are imported first.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Storage = store

	if cfg.Catalog.WatchDir != "" {
		if _, err := seedCatalog(ctx, cfg, catalog.NewImporter(store, logger), logger); err != nil {
			return nil, err
		}
	}

	embedder, embedderID, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Embedder = embedder

	c.Index = indexer.NewManager(store, embedder, indexer.Options{
		IndexType: cfg.Index.Type,
		IndexPath: cfg.Index.Path,
		Params: vector.Params{
			M:              cfg.Index.M,
			EfConstruction: cfg.Index.EfConstruction,
			EfSearch:       cfg.Index.EfSearch,
		},
		CapacityMultiplier: cfg.Index.CapacityMultiplier,
		EmbedderID:         embedderID,
	}, indexer.WithLogger(logger))
	if _, err := c.Index.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	if c.Sessions, err = newSessionStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	client := ollama.NewClient(cfg.Generation.URL, ollama.WithTimeout(cfg.Generation.Timeout))
	gen, err := generation.NewOllamaGenerator(client, generation.OllamaOptions{
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		TopP:        cfg.Generation.TopP,
		NumPredict:  cfg.Generation.NumPredict,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	if err := gen.Ping(ctx); err != nil {
		logger.Warn("generation backend not reachable; answers will fail until it is",
			zap.String("url", client.BaseURL()), zap.String("model", gen.Model()), zap.Error(err))
	}
	c.Generator = gen

	c.Engine = continuity.NewEngine(c.Index, continuity.Config{
		MatchDistance:        cfg.Continuity.MatchDistance,
		ContinuitySimilarity: cfg.Continuity.ContinuitySimilarity,
	}, continuity.WithLogger(logger))
	c.QA = qa.NewService(c.Sessions, c.Engine, gen,
		qa.WithLogger(logger),
		qa.WithGenericContext(cfg.Continuity.GenericContext),
	)

	ok = true
	return c, nil
}
