package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/giak/mnemolite/internal/cascade"
	"github.com/giak/mnemolite/internal/pipeline"
	"github.com/giak/mnemolite/internal/scanner"
	"github.com/giak/mnemolite/internal/store"
)

// Coordinator drives the Work Coordinator responsibilities of §4.10 over
// one Pipeline: directory scan, sequential/parallel file dispatch, the
// repository lock, throttled progress, and L2-backed IndexingStatus.
type Coordinator struct {
	pipeline *pipeline.Pipeline
	metadata store.MetadataStore
	cascade  *cascade.Cache
	scanner  *scanner.Scanner
	locker   RepoLocker
	status   *StatusTracker
	log      *slog.Logger
}

// Deps are the collaborators a Coordinator needs beyond the Pipeline.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Metadata store.MetadataStore
	Cascade  *cascade.Cache
	Locker   RepoLocker
	Status   *StatusTracker
	Log      *slog.Logger
}

// New builds a Coordinator. Panics are never used here: a nil Scanner
// constructor failure is surfaced as an error to the caller.
func New(deps Deps) (*Coordinator, error) {
	sc, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		pipeline: deps.Pipeline,
		metadata: deps.Metadata,
		cascade:  deps.Cascade,
		scanner:  sc,
		locker:   deps.Locker,
		status:   deps.Status,
		log:      log,
	}, nil
}

// IndexRepository scans rootPath, dispatches every discovered file through
// the Pipeline (sequentially for small repositories, in parallel
// otherwise), and runs the Graph Constructor once all files commit.
func (c *Coordinator) IndexRepository(ctx context.Context, repository, rootPath string, opts WorkOptions, progress ProgressFunc) (*IndexSummary, error) {
	start := time.Now()

	unlock, ok, err := c.locker.TryLock(ctx, repository)
	if err != nil {
		return nil, fmt.Errorf("acquire repository lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyInProgress
	}
	defer unlock()

	if opts.ForceReindex {
		if err := c.forceClean(ctx, repository); err != nil {
			c.status.Fail(ctx, repository, err.Error())
			return nil, fmt.Errorf("force reindex cleanup: %w", err)
		}
	}

	files, err := c.scanFiles(ctx, rootPath, opts)
	if err != nil {
		c.status.Fail(ctx, repository, err.Error())
		return nil, err
	}
	if len(files) > MaxFiles {
		err := fmt.Errorf("repository has %d files, exceeding the %d-file cap", len(files), MaxFiles)
		c.status.Fail(ctx, repository, err.Error())
		return nil, err
	}
	if len(files) > WarnFiles {
		c.log.Warn("repository file count approaching the hard cap", "repository", repository, "files", len(files), "warn_threshold", WarnFiles, "hard_cap", MaxFiles)
	}

	c.status.Start(ctx, repository, len(files))

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	var summary IndexSummary
	var mu sync.Mutex
	processed := 0
	lastEmit := time.Now()

	emit := func(message string) {
		processed++
		mu.Lock()
		shouldEmit := processed%ProgressEveryNFiles == 0 || time.Since(lastEmit) >= ProgressThrottle || processed == len(files)
		if shouldEmit {
			lastEmit = time.Now()
		}
		mu.Unlock()
		if progress != nil && shouldEmit {
			progress(ProgressEvent{Current: processed, Total: len(files), Message: message})
		}
		c.status.Update(ctx, repository, processed, summary.ChunksTotal)
	}

	applyResult := func(res *pipeline.FileResult) {
		mu.Lock()
		defer mu.Unlock()
		switch res.Status {
		case pipeline.StatusIndexed:
			summary.FilesIndexed++
			summary.ChunksTotal += res.ChunksCount
		case pipeline.StatusSkipped:
			summary.FilesSkipped++
		case pipeline.StatusFailed:
			summary.FilesFailed++
			if res.Err != nil {
				summary.Errors = append(summary.Errors, res.Err.Error())
			}
		}
	}

	indexOne := func(f *scanner.FileInfo) {
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			applyResult(&pipeline.FileResult{Status: pipeline.StatusFailed, Reason: pipeline.ReasonPersistError, Err: err})
			emit(f.Path)
			return
		}
		res := c.pipeline.IndexFile(ctx, repository, f.Path, content)
		applyResult(res)
		emit(f.Path)
	}

	if len(files) < SequentialThreshold || workers == 1 {
		for _, f := range files {
			if ctx.Err() != nil {
				break
			}
			indexOne(f)
		}
	} else {
		jobs := make(chan *scanner.FileInfo)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for f := range jobs {
					if ctx.Err() != nil {
						continue
					}
					indexOne(f)
				}
			}()
		}
		for _, f := range files {
			jobs <- f
		}
		close(jobs)
		wg.Wait()
	}

	if ctx.Err() != nil {
		c.status.Fail(ctx, repository, "cancelled")
		summary.Duration = time.Since(start)
		return &summary, ctx.Err()
	}

	buildResult, err := c.pipeline.BuildGraph(ctx, repository)
	if err != nil {
		c.log.Error("graph construction failed", "repository", repository, "err", err)
		summary.Errors = append(summary.Errors, err.Error())
	} else {
		summary.GraphNodes = buildResult.NodesUpserted
		summary.GraphEdges = buildResult.EdgesInserted
	}

	summary.Duration = time.Since(start)
	c.status.Complete(ctx, repository)
	return &summary, nil
}

func (c *Coordinator) scanFiles(ctx context.Context, rootPath string, opts WorkOptions) ([]*scanner.FileInfo, error) {
	ch, err := c.scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:          rootPath,
		RespectGitignore: !opts.IncludeIgnored,
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", rootPath, err)
	}

	var files []*scanner.FileInfo
	for res := range ch {
		if res.Error != nil {
			c.log.Warn("scan error", "err", res.Error)
			continue
		}
		if res.File != nil {
			files = append(files, res.File)
		}
	}
	return files, nil
}

func (c *Coordinator) forceClean(ctx context.Context, repository string) error {
	if err := c.metadata.DeleteChunksByRepository(ctx, repository); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := c.metadata.DeleteNodesByRepository(ctx, repository); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	if err := c.metadata.DeleteEdgesByRepository(ctx, repository); err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}
	if err := c.metadata.DeleteComputedMetricsByRepository(ctx, repository); err != nil {
		return fmt.Errorf("delete computed metrics: %w", err)
	}
	c.cascade.InvalidateRepository(ctx, repository)
	return nil
}

// GetIndexingStatus returns the current IndexingStatus for repository.
func (c *Coordinator) GetIndexingStatus(ctx context.Context, repository string) (Status, bool) {
	return c.status.Get(ctx, repository)
}

// ClearCacheScope enumerates the §6.1 clear_cache scopes.
type ClearCacheScope struct {
	All        bool
	Repository string
	FilePath   string
}

// ClearCache drops cache entries for the requested scope.
func (c *Coordinator) ClearCache(ctx context.Context, scope ClearCacheScope) {
	switch {
	case scope.All:
		c.cascade.InvalidateAll(ctx)
	case scope.Repository != "":
		c.cascade.InvalidateRepository(ctx, scope.Repository)
	case scope.FilePath != "":
		c.cascade.Invalidate(ctx, scope.FilePath)
	}
}

// RepositoryStats returns §6.1's repository_stats result.
func (c *Coordinator) RepositoryStats(ctx context.Context, repository string) (store.RepositoryStats, error) {
	return c.metadata.RepositoryStats(ctx, repository)
}
