package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/lfreitas/syncbox/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache counts and pending outbox entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			ctx := cmd.Context()
			logger := zap.NewNop()
			msgs := store.NewMessages(eng, logger)
			convs := store.NewConversations(eng, logger)
			outbox := store.NewOutbox(eng)

			msgCount, err := msgs.Count(ctx)
			if err != nil {
				return err
			}
			convCount, err := convs.Count(ctx)
			if err != nil {
				return err
			}
			entries, err := outbox.List(ctx)
			if err != nil {
				return err
			}

			pending, failed := 0, 0
			for _, e := range entries {
				if e.Status == store.OutboxFailed {
					failed++
				} else {
					pending++
				}
			}

			fmt.Printf("Conversations: %d\n", convCount)
			fmt.Printf("Messages:      %d\n", msgCount)
			fmt.Printf("Outbox:        %s pending", color.YellowString("%d", pending))
			if failed > 0 {
				fmt.Printf(", %s failed", color.RedString("%d", failed))
			}
			fmt.Println()
			return nil
		},
	}
}
