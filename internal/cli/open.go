package cli

import (
	"fmt"

	"github.com/lfreitas/syncbox/internal/profile"
	"github.com/lfreitas/syncbox/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// openStore resolves the profile from the --profile flag and opens its cache
// database. The caller owns the returned engine.
func openStore(cmd *cobra.Command) (*store.Engine, error) {
	flagVal, _ := cmd.Flags().GetString("profile")
	name := profile.Resolve(flagVal)
	if err := profile.ValidateName(name); err != nil {
		return nil, err
	}
	if err := profile.EnsureDir(name); err != nil {
		return nil, err
	}
	eng, err := store.Open(profile.DBPath(name), store.Options{}, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("open cache for profile %q: %w", name, err)
	}
	return eng, nil
}
