package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/lfreitas/syncbox/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// LogsCmd returns the diagnostic log command group.
func LogsCmd() *cobra.Command {
	var (
		category string
		since    time.Duration
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query persisted diagnostic logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			var sinceMs int64
			if since > 0 {
				sinceMs = time.Now().Add(-since).UnixMilli()
			}
			entries, err := store.NewLogs(eng, zap.NewNop()).Query(cmd.Context(), category, sinceMs, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				level := e.Level
				switch level {
				case "error":
					level = color.RedString(level)
				case "warn":
					level = color.YellowString(level)
				}
				fmt.Printf("%s  %-5s  %-12s  %s\n",
					time.UnixMilli(e.TS).Format(time.RFC3339), level, e.Category, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only entries in this category")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this age, e.g. 24h")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to print")

	cmd.AddCommand(logsPruneCmd())
	return cmd
}

func logsPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete log entries older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			deleted, err := store.NewLogs(eng, zap.NewNop()).Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d entries\n", deleted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "delete entries older than this age")
	return cmd
}
