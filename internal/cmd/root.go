package cmd

import (
	"context"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/config"
	"github.com/feedmeta/feedmeta/internal/observability"
)

const appName = config.AppName

var (
	cfgFile string
	verbose bool

	// appConfig is loaded by initConfig before any command runs.
	appConfig *config.Config

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Background profile-metrics fetcher with a rate-limited scheduler",
	Long: `feedmeta keeps a durable cache of public profile metrics (followers,
following, join year, location) fresh in the background.

Requests are answered from the cache immediately; stale or missing keys are
queued and fetched under a per-minute rate cap and a concurrency cap. Use
"serve" to run the scheduler behind an HTTP API, or the other subcommands to
inspect and manage the durable store directly.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early so CLI commands do not emit metrics to
	// stdout. serve initializes the Prometheus exporter later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/feedmeta/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig loads the layered configuration and the CLI logger.
func initConfig() {
	observability.InitCLILogger(appName, verbose)

	cfg, err := config.LoadFile(context.Background(), cfgFile, flagOverrides())
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load configuration", err)
	}
	appConfig = cfg

	if verbose {
		observability.CLILogger.Debug("Configuration loaded",
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("fetcher_driver", cfg.Fetcher.Driver))
	}
}

// flagOverrides turns explicitly set flags bound in viper into a runtime
// config layer.
func flagOverrides() map[string]any {
	overrides := map[string]any{}
	server := map[string]any{}
	for _, key := range []string{"host", "port"} {
		if viper.IsSet("server." + key) {
			server[key] = viper.Get("server." + key)
		}
	}
	if len(server) > 0 {
		overrides["server"] = server
	}
	if viper.IsSet("store.driver") {
		overrides["store"] = map[string]any{"driver": viper.GetString("store.driver")}
	}
	if viper.IsSet("fetcher.driver") {
		overrides["fetcher"] = map[string]any{"driver": viper.GetString("fetcher.driver")}
	}
	return overrides
}
