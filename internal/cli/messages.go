package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/lfreitas/syncbox/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func statusColor(s string) string {
	switch s {
	case store.StatusFailed:
		return color.RedString(s)
	case store.StatusPending:
		return color.YellowString(s)
	case store.StatusRead:
		return color.GreenString(s)
	default:
		return s
	}
}

// MessagesCmd returns the messages command.
func MessagesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "List cached messages for a conversation, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			msgs, err := store.NewMessages(eng, zap.NewNop()).List(cmd.Context(), args[0], 0, limit)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println("no cached messages")
				return nil
			}

			for _, m := range msgs {
				fmt.Printf("%s  %s  [%s]  %s\n",
					time.UnixMilli(m.SentAt).Format(time.RFC3339),
					m.SenderID,
					statusColor(m.Status),
					m.Body)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages to list")
	return cmd
}

// SearchCmd returns the search command.
func SearchCmd() *cobra.Command {
	var conversationID string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over cached message bodies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			results, err := store.NewMessages(eng, zap.NewNop()).Search(cmd.Context(), args[0], conversationID, limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no matches")
				return nil
			}

			for _, r := range results {
				snippet := r.Snippet
				if snippet == "" {
					snippet = r.Message.Body
				}
				fmt.Printf("%s  %s  %s\n", r.Message.ConversationID, r.Message.ID, snippet)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "restrict search to one conversation")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	return cmd
}
