package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ResetCmd returns the cache reset command. It wipes every table but keeps
// the schema, so the next daemon start resyncs from scratch.
func ResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all cached data for the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("reset deletes all cached messages and the outbox; rerun with --yes to confirm")
			}
			eng, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if err := eng.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")
	return cmd
}
