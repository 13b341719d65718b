package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giak/mnemolite/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		language   string
		kind       string
		repository string
		limit      int
		offset     int
		jsonOut    bool
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index with hybrid lexical + semantic ranking",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

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

			opts := search.DefaultOptions()
			opts.Filters.Language = language
			opts.Filters.Kind = kind
			opts.Filters.Repository = repository
			opts.Pagination.Limit = limit
			opts.Pagination.Offset = offset
			opts.Flags.Cache = !noCache

			results, err := a.search.Search(cmd.Context(), query, opts)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d results (%d total, %.3fs, cache=%v)\n",
				len(results.Results), results.Total, results.LatencySeconds, results.CacheHit)
			for i, r := range results.Results {
				fmt.Fprintf(out, "%2d. %s:%d-%d  [%s]  score=%.4f\n",
					offset+i+1, r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine, r.Chunk.Kind, r.Score)
				if r.Chunk.Name != "" {
					fmt.Fprintf(out, "      %s\n", r.Chunk.Name)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&language, "language", "", "Filter by language")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by chunk kind")
	cmd.Flags().StringVar(&repository, "repository", "", "Filter by repository")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result page offset")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the result cache")

	return cmd
}
