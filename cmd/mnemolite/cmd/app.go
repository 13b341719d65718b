package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giak/mnemolite/internal/cachel1"
	"github.com/giak/mnemolite/internal/cachel2"
	"github.com/giak/mnemolite/internal/cascade"
	"github.com/giak/mnemolite/internal/chunk"
	"github.com/giak/mnemolite/internal/config"
	"github.com/giak/mnemolite/internal/coordinator"
	"github.com/giak/mnemolite/internal/embedclient"
	"github.com/giak/mnemolite/internal/metadata"
	"github.com/giak/mnemolite/internal/oracle"
	"github.com/giak/mnemolite/internal/pipeline"
	"github.com/giak/mnemolite/internal/search"
	"github.com/giak/mnemolite/internal/store"
)

// app bundles every live component a subcommand needs, wired once from
// the project's configuration. Close must be called before the process
// exits to flush and persist the vector index.
type app struct {
	cfg *config.Config
	log *slog.Logger

	dataDir    string
	vectorPath string

	metadata store.MetadataStore
	bm25     store.BM25Index
	vector   *store.HNSWStore
	cascade  *cascade.Cache
	embedder embedclient.Embedder

	pipeline    *pipeline.Pipeline
	coordinator *coordinator.Coordinator
	search      *search.Engine
}

// newApp opens every store rooted at dataDir and wires the pipeline,
// coordinator, and search engine over them. dataDir is created if absent.
func newApp(root string, cfg *config.Config, log *slog.Logger) (*app, error) {
	dataDir := filepath.Join(root, ".mnemolite")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	metadataStore, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	bm25, err := store.NewSQLiteBM25Index(filepath.Join(dataDir, "bm25.db"), store.DefaultBM25Config())
	if err != nil {
		return nil, fmt.Errorf("open bm25 index: %w", err)
	}

	embedder, err := embedclient.New(embedclient.Config{CacheSize: cfg.Performance.CacheSize})
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vector.Load(vectorPath); err != nil {
			log.Warn("failed to load existing vector index, starting empty", "err", err)
		}
	}

	l1 := cachel1.New(int64(cfg.Performance.CacheSize) * 1 << 20)
	l2 := cachel2.New(cachel2.Config{Addr: cfg.Cache.Address, Password: cfg.Cache.Password, DB: cfg.Cache.DB, PoolSize: cfg.Cache.PoolSize})
	cascadeCache := cascade.New(l1, l2, 5*time.Minute)

	pl := pipeline.New(pipeline.Dependencies{
		Cascade:         cascadeCache,
		Metadata:        metadataStore,
		BM25:            bm25,
		Vector:          vector,
		Embedder:        embedder,
		CodeChunker:     chunk.NewCodeChunker(),
		MarkdownChunker: chunk.NewMarkdownChunker(),
		MetadataReg:     metadata.NewRegistry(),
		Oracle:          oracle.NoOp{},
		Parser:          chunk.NewParser(),
		Log:             log,
	})

	locker := buildLocker(cfg, dataDir)
	status := coordinator.NewStatusTracker(l2)

	coord, err := coordinator.New(coordinator.Deps{
		Pipeline: pl,
		Metadata: metadataStore,
		Cascade:  cascadeCache,
		Locker:   locker,
		Status:   status,
		Log:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}

	engine := search.New(bm25, vector, metadataStore, embedder, l2)

	return &app{
		cfg:         cfg,
		log:         log,
		dataDir:     dataDir,
		vectorPath:  vectorPath,
		metadata:    metadataStore,
		bm25:        bm25,
		vector:      vector,
		cascade:     cascadeCache,
		embedder:    embedder,
		pipeline:    pl,
		coordinator: coord,
		search:      engine,
	}, nil
}

// buildLocker composes the §4.10 repository lock: Redis-backed when a
// cache address is configured, falling back to a local flock directory.
func buildLocker(cfg *config.Config, dataDir string) coordinator.RepoLocker {
	flockDir := filepath.Join(dataDir, "locks")
	fallback := coordinator.NewFlockLocker(flockDir)
	if cfg.Cache.Address == "" {
		return fallback
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Cache.Address, Password: cfg.Cache.Password, DB: cfg.Cache.DB})
	primary := coordinator.NewRedsyncLocker(client, coordinator.RepoLockTTL)
	return coordinator.NewFallbackLocker(primary, fallback)
}

// Close persists the vector index and closes every owned store.
func (a *app) Close() error {
	if err := a.vector.Save(a.vectorPath); err != nil {
		a.log.Warn("failed to save vector index", "err", err)
	}
	var firstErr error
	for _, closer := range []func() error{a.vector.Close, a.bm25.Close} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if closer, ok := a.metadata.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func projectRoot() (string, error) {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		return os.Getwd()
	}
	return root, nil
}

func loadConfig(root string) *config.Config {
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	return cfg
}

// defaultLogger returns the process-wide logger, honoring --debug's
// slog.SetDefault override from startLogging.
func defaultLogger() *slog.Logger {
	return slog.Default()
}
