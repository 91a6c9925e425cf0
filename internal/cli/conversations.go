package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/lfreitas/syncbox/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ConversationsCmd returns the conversations command.
func ConversationsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List cached conversations, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			convs, err := store.NewConversations(eng, zap.NewNop()).List(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Println("no cached conversations")
				return nil
			}

			bold := color.New(color.Bold).SprintFunc()
			for _, c := range convs {
				name := c.Name
				if name == "" {
					name = c.ID
				}
				line := fmt.Sprintf("%s  [%s, %d participants]", bold(name), c.Kind, len(c.Participants))
				if c.LastMessageAt > 0 {
					line += fmt.Sprintf("  %s  %q",
						time.UnixMilli(c.LastMessageAt).Format(time.RFC3339),
						c.LastMessagePreview)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum conversations to list")
	return cmd
}
