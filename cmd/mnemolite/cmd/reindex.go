package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newReindexCmd() *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "reindex <file>",
		Short: "Re-index a single file",
		Long: `Re-indexes one file: invalidates its cache entry, re-parses and
re-chunks it, and replaces its chunks/graph edges in place. Use this
for a targeted refresh instead of reindexing the whole repository.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]

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

			repo := repository
			if repo == "" {
				repo = root
			}

			source, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("read %s: %w", filePath, err)
			}

			result := a.pipeline.IndexFile(cmd.Context(), repo, filePath, source)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s (%d chunks", filePath, result.Status, result.ChunksCount)
			if result.CacheHit {
				fmt.Fprint(out, ", cache hit")
			}
			fmt.Fprintln(out, ")")
			if result.Err != nil {
				return result.Err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repository", "", "Repository key to associate the file with (default: current project root)")

	return cmd
}
