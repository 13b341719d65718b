package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giak/mnemolite/internal/coordinator"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the cache hierarchy",
	}

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheStatsCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var (
		all        bool
		repository string
		filePath   string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached chunks for a scope",
		Long: `Clears cached chunks from both the L1 and L2 cache layers.

Exactly one scope must be selected: --all clears everything, --repository
clears one repository, --file clears a single file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, set := range []bool{all, repository != "", filePath != ""} {
				if set {
					selected++
				}
			}
			if selected != 1 {
				return fmt.Errorf("exactly one of --all, --repository, or --file is required")
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

			a.coordinator.ClearCache(cmd.Context(), coordinator.ClearCacheScope{
				All:        all,
				Repository: repository,
				FilePath:   filePath,
			})
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Clear every cached entry")
	cmd.Flags().StringVar(&repository, "repository", "", "Clear entries for a single repository")
	cmd.Flags().StringVar(&filePath, "file", "", "Clear the entry for a single file")

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit/miss counters",
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

			stats := a.cascade.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "L1: %d entries, %d/%d bytes, hit rate %.1f%%\n",
				stats.L1.Entries, stats.L1.SizeBytes, stats.L1.MaxBytes, stats.L1.HitRate*100)
			fmt.Fprintf(out, "L2: hit rate %.1f%%, %d failures\n", stats.L2.HitRate*100, stats.L2.Failures)
			fmt.Fprintf(out, "combined hit rate: %.1f%%\n", stats.CombinedHit*100)
			return nil
		},
	}
}
