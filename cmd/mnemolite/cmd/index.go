package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/giak/mnemolite/internal/coordinator"
	"github.com/giak/mnemolite/internal/watcher"
)

func newIndexCmd() *cobra.Command {
	var (
		force   bool
		workers int
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This scans files, chunks code and documents, extracts metadata, builds
the symbol graph, and writes both the BM25 and vector indices.

Use --force to clear existing index data for the repository and
rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			root, err := projectRoot()
			if err != nil {
				return fmt.Errorf("resolve project root: %w", err)
			}
			cfg := loadConfig(root)

			a, err := newApp(root, cfg, defaultLogger())
			if err != nil {
				return fmt.Errorf("wire app: %w", err)
			}
			defer func() { _ = a.Close() }()

			repository := root
			start := time.Now()
			var lastPrinted time.Time
			summary, err := a.coordinator.IndexRepository(ctx, repository, path, coordinator.WorkOptions{
				Workers:      workers,
				ForceReindex: force,
			}, func(ev coordinator.ProgressEvent) {
				if time.Since(lastPrinted) < time.Second && ev.Current != ev.Total {
					return
				}
				lastPrinted = time.Now()
				fmt.Fprintf(cmd.OutOrStdout(), "  %d/%d %s\n", ev.Current, ev.Total, ev.Message)
			})
			if err != nil {
				return fmt.Errorf("index repository: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %s in %s\n", repository, time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(out, "  files indexed: %d\n", summary.FilesIndexed)
			fmt.Fprintf(out, "  files skipped: %d\n", summary.FilesSkipped)
			fmt.Fprintf(out, "  files failed:  %d\n", summary.FilesFailed)
			fmt.Fprintf(out, "  chunks:        %d\n", summary.ChunksTotal)
			fmt.Fprintf(out, "  graph nodes:   %d\n", summary.GraphNodes)
			fmt.Fprintf(out, "  graph edges:   %d\n", summary.GraphEdges)
			for _, e := range summary.Errors {
				fmt.Fprintf(out, "  error: %s\n", e)
			}

			if watch {
				return watchAndReindex(ctx, a, repository, path, out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index data and rebuild from scratch")
	cmd.Flags().IntVar(&workers, "workers", coordinator.DefaultWorkers, "Number of parallel indexing workers")
	cmd.Flags().BoolVar(&watch, "watch", false, "Stay running, re-indexing files as they change")

	return cmd
}

// watchAndReindex re-indexes individual files as the watcher reports
// settled changes, until ctx is cancelled (Ctrl+C). Deletions invalidate
// the file's cache entry without re-indexing it.
func watchAndReindex(ctx context.Context, a *app, repository, rootPath string, out io.Writer) error {
	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(ctx, rootPath); err != nil {
		return fmt.Errorf("watch %s: %w", rootPath, err)
	}

	fmt.Fprintf(out, "watching %s for changes (ctrl-c to stop)\n", rootPath)

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, ev := range batch {
				handleWatchEvent(ctx, a, repository, rootPath, ev, out)
			}
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			slog.Warn("watcher error", "err", err)
		}
	}
}

func handleWatchEvent(ctx context.Context, a *app, repository, rootPath string, ev watcher.FileEvent, out io.Writer) {
	if ev.IsDir {
		return
	}
	absPath := filepath.Join(rootPath, ev.Path)

	if ev.Operation == watcher.OpDelete {
		a.cascade.Invalidate(ctx, absPath)
		fmt.Fprintf(out, "invalidated %s\n", ev.Path)
		return
	}

	source, err := os.ReadFile(absPath)
	if err != nil {
		slog.Warn("watch: read file", "path", absPath, "err", err)
		return
	}
	result := a.pipeline.IndexFile(ctx, repository, absPath, source)
	fmt.Fprintf(out, "reindexed %s: %s (%d chunks)\n", ev.Path, result.Status, result.ChunksCount)
}
