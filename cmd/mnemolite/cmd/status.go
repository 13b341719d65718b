package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the indexing status of a repository",
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

			st, ok := a.coordinator.GetIndexingStatus(cmd.Context(), repo)
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "no indexing status recorded for %s\n", repo)
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "repository: %s\n", st.Repository)
			fmt.Fprintf(out, "state:      %s\n", st.State)
			fmt.Fprintf(out, "files:      %d/%d\n", st.FilesProcessed, st.FilesTotal)
			fmt.Fprintf(out, "chunks:     %d\n", st.ChunksTotal)
			fmt.Fprintf(out, "started:    %s\n", st.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
			fmt.Fprintf(out, "updated:    %s\n", st.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
			if st.ErrorMessage != "" {
				fmt.Fprintf(out, "error:      %s\n", st.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repository", "", "Repository key to query (default: current project root)")

	return cmd
}
