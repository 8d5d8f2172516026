package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/core/store"
	errwrap "github.com/feedmeta/feedmeta/internal/errors"
	"github.com/feedmeta/feedmeta/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the configuration loads and the durable store is reachable.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		lines := []string{"Health", ""}

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing",
				errwrap.NewInternalError("version information missing"))
			return
		}
		lines = append(lines, "version: "+versionInfo.Version)

		if appConfig == nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration not loaded",
				errwrap.NewInternalError("configuration not loaded"))
			return
		}
		lines = append(lines, fmt.Sprintf("config: ok (store=%s, fetcher=%s)", appConfig.Store.Driver, appConfig.Fetcher.Driver))

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		backend, err := store.OpenBackend(ctx, appConfig.Store)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Store unavailable",
				errwrap.WrapDatabaseError(ctx, err, "open store"))
			return
		}
		defer backend.Close() // nolint:errcheck // best-effort cleanup
		if err := backend.Ping(ctx); err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Store ping failed",
				errwrap.WrapDatabaseError(ctx, err, "ping store"))
			return
		}
		state, err := backend.LoadState(ctx)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Store read failed",
				errwrap.WrapDatabaseError(ctx, err, "load state"))
			return
		}
		logger.Debug("Store reachable", zap.Int("entries", len(state.Users)))
		lines = append(lines, fmt.Sprintf("store: ok (%d cached entries)", len(state.Users)))

		_, _ = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
