package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/lfreitas/syncbox/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "syncboxctl",
		Short: "Inspect and manage the local message cache",
		Long: `syncboxctl operates directly on a profile's offline cache database:
conversations, messages, the send outbox, diagnostic logs, and sync state.`,
	}

	rootCmd.PersistentFlags().StringP("profile", "p", "", "profile name (overrides env and config default)")

	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.ConversationsCmd())
	rootCmd.AddCommand(cli.MessagesCmd())
	rootCmd.AddCommand(cli.SearchCmd())
	rootCmd.AddCommand(cli.OutboxCmd())
	rootCmd.AddCommand(cli.LogsCmd())
	rootCmd.AddCommand(cli.ResetCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
