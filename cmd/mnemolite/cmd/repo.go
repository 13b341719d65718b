package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Inspect repository-level index statistics",
	}
	cmd.AddCommand(newRepoStatsCmd())
	return cmd
}

func newRepoStatsCmd() *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show graph and chunk counts for a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			stats, err := a.coordinator.RepositoryStats(cmd.Context(), repo)
			if err != nil {
				return fmt.Errorf("repository stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "repository:      %s\n", repo)
			fmt.Fprintf(out, "total chunks:    %d\n", stats.TotalChunks)
			fmt.Fprintf(out, "graph nodes:     %d\n", stats.Nodes)
			fmt.Fprintf(out, "graph edges:     %d\n", stats.Edges)
			fmt.Fprintf(out, "languages:       %s\n", strings.Join(stats.Languages, ", "))
			if !stats.LastIndexedAt.IsZero() {
				fmt.Fprintf(out, "last indexed at: %s\n", stats.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repository", "", "Repository key to query (default: current project root)")

	return cmd
}
