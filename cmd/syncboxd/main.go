package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/lfreitas/syncbox/internal/app"
	"github.com/lfreitas/syncbox/internal/profile"
	"go.uber.org/fx"
)

func main() {
	// Optional .env for SYNCBOX_HOME / SYNCBOX_PROFILE overrides.
	_ = godotenv.Load()

	profileFlag := flag.String("profile", "", "profile name (overrides env and config default)")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fxApp := fx.New(
		app.Module(app.Params{Profile: name}),
	)

	fxApp.Run()
}
