package handlers

import (
	"fmt"
	"time"

	"commentpulse/internal/config"
	"commentpulse/internal/store"

	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command for managing the local result store.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local analysis store",
		Long: `Manage the local sqlite store that holds comments, jobs and cached
analysis results. Results younger than the freshness window are reused by
the analyze command instead of re-running the pipeline.`,
	}

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheCleanupCmd())

	return cmd
}

// openLocalStore opens the sqlite store regardless of the configured backend;
// cache maintenance always targets the local database file.
func openLocalStore() (*store.Store, error) {
	return store.New(config.Get().App.DataDir)
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openLocalStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.GetStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get store stats: %w", err)
			}

			fmt.Println("Store statistics")
			fmt.Println("----------------")
			fmt.Printf("Comments: %d\n", stats.CommentCount)
			fmt.Printf("Jobs:     %d\n", stats.JobCount)
			fmt.Printf("Results:  %d\n", stats.ResultCount)
			fmt.Printf("Size:     %.1f KB\n", float64(stats.StoreSize)/1024)
			if !stats.LastUpdated.IsZero() {
				fmt.Printf("Updated:  %s\n", stats.LastUpdated.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all stored comments, jobs and results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to clear the store without --confirm")
			}

			st, err := openLocalStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear store: %w", err)
			}
			fmt.Println("Store cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm deletion of all stored data")

	return cmd
}

func newCacheCleanupCmd() *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete results and finished jobs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openLocalStore()
			if err != nil {
				return err
			}
			defer st.Close()

			window := retention
			if window <= 0 {
				window = config.Get().Store.RetentionDuration()
			}

			if err := st.Cleanup(cmd.Context(), window); err != nil {
				return fmt.Errorf("failed to clean up store: %w", err)
			}
			fmt.Printf("Removed entries older than %s\n", window)
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 0, "Retention window override (e.g. 168h)")

	return cmd
}
