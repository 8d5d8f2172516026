package main

import (
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/feedmeta/feedmeta/internal/cmd"
	"github.com/feedmeta/feedmeta/internal/server/handlers"
)

// Version information set via ldflags during build
// go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-10-17"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		cmd.ExitWithCodeStderr(foundry.ExitFailure, "Command execution failed", err)
	}
}
