package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/lfreitas/syncbox/internal/store"
	"github.com/spf13/cobra"
)

// OutboxCmd returns the outbox command group.
func OutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and manage queued sends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			entries, err := store.NewOutbox(eng).List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("outbox is empty")
				return nil
			}

			for _, e := range entries {
				st := e.Status
				if st == store.OutboxFailed {
					st = color.RedString(st)
				}
				line := fmt.Sprintf("%d  %s  %s  [%s]  retries=%d", e.Seq, e.MessageID, e.ConversationID, st, e.RetryCount)
				if e.LastError != "" {
					line += fmt.Sprintf("  last_error=%q", e.LastError)
				}
				line += "  enqueued=" + time.UnixMilli(e.EnqueuedAt).Format(time.RFC3339)
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.AddCommand(outboxRetryCmd())
	cmd.AddCommand(outboxRemoveCmd())
	return cmd
}

func outboxRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <message-id>",
		Short: "Requeue a failed entry for delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			outbox := store.NewOutbox(eng)
			entry, err := outbox.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if entry == nil {
				return fmt.Errorf("no outbox entry for message %q", args[0])
			}
			if entry.Status != store.OutboxFailed {
				return fmt.Errorf("entry %q is %s, only failed entries can be retried", args[0], entry.Status)
			}
			if err := outbox.Requeue(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("requeued", args[0])
			return nil
		},
	}
}

func outboxRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <message-id>",
		Short: "Discard an outbox entry without sending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if err := store.NewOutbox(eng).Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("removed", args[0])
			return nil
		},
	}
}
