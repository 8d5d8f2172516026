package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/config"
	"github.com/feedmeta/feedmeta/internal/core/fetcher"
	"github.com/feedmeta/feedmeta/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the environment, store and fetcher and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("=== " + appName + " doctor ===")
		logger.Info("")

		allChecks := true
		const totalChecks = 5

		goVersion := runtime.Version()
		logger.Info(fmt.Sprintf("[1/%d] Checking Go runtime... ✅ %s %s/%s", totalChecks, goVersion, runtime.GOOS, runtime.GOARCH),
			zap.String("go_version", goVersion))

		version := crucible.GetVersion()
		if version.Gofulmen != "" && version.Crucible != "" {
			logger.Info(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ✅ v%s / v%s", totalChecks, version.Gofulmen, version.Crucible))
		} else {
			logger.Warn(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ⚠️  version metadata unavailable", totalChecks))
			allChecks = false
		}

		configPath := config.DefaultConfigPath()
		switch {
		case cfgFile != "":
			logger.Info(fmt.Sprintf("[3/%d] Checking config... ✅ %s (--config)", totalChecks, cfgFile))
		case configPath == "":
			logger.Warn(fmt.Sprintf("[3/%d] Checking config... ⚠️  cannot resolve config directory", totalChecks))
			allChecks = false
		default:
			if _, err := os.Stat(configPath); err == nil {
				logger.Info(fmt.Sprintf("[3/%d] Checking config... ✅ %s", totalChecks, configPath))
			} else {
				logger.Info(fmt.Sprintf("[3/%d] Checking config... ✅ defaults (no %s)", totalChecks, configPath))
			}
		}

		if !checkStore(totalChecks) {
			allChecks = false
		}
		if !checkFetcher(totalChecks) {
			allChecks = false
		}

		logger.Info("")
		if allChecks {
			logger.Info("✅ All checks passed")
		} else {
			logger.Warn("⚠️  Some checks need attention")
		}
	},
}

func checkStore(total int) bool {
	logger := observability.CLILogger
	cfg := appConfig.Store
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		logger.Warn(fmt.Sprintf("[4/%d] Checking store... ⚠️  memory driver: state is lost on exit", total))
		return true
	case "postgres":
		logger.Info(fmt.Sprintf("[4/%d] Checking store... ✅ postgres (remote)", total))
		return true
	}
	if cfg.URL != "" {
		logger.Info(fmt.Sprintf("[4/%d] Checking store... ✅ libsql (remote)", total))
		return true
	}

	absPath, _ := filepath.Abs(cfg.Path)
	info, err := os.Stat(absPath)
	switch {
	case err == nil:
		logger.Info(fmt.Sprintf("[4/%d] Checking store... ✅ %s (%s)", total, absPath, formatFileSize(info.Size())),
			zap.String("db_path", absPath),
			zap.Int64("db_size", info.Size()))
		return true
	case os.IsNotExist(err):
		logger.Warn(fmt.Sprintf("[4/%d] Checking store... ⚠️  %s (not created yet)", total, absPath))
		return true
	default:
		logger.Warn(fmt.Sprintf("[4/%d] Checking store... ⚠️  %s", total, absPath), zap.Error(err))
		return false
	}
}

func checkFetcher(total int) bool {
	logger := observability.CLILogger
	cfg := appConfig.Fetcher
	switch {
	case cfg.Driver == fetcher.DriverNone:
		logger.Warn(fmt.Sprintf("[5/%d] Checking fetcher... ⚠️  disabled: every fetch resolves unavailable", total))
		return true
	case cfg.ControlURL != "":
		logger.Info(fmt.Sprintf("[5/%d] Checking fetcher... ✅ remote browser %s", total, cfg.ControlURL))
		return true
	}
	if path, ok := launcher.LookPath(); ok {
		logger.Info(fmt.Sprintf("[5/%d] Checking fetcher... ✅ browser %s", total, path))
		return true
	}
	logger.Warn(fmt.Sprintf("[5/%d] Checking fetcher... ⚠️  no local Chromium found; it will be downloaded on first fetch", total))
	logger.Info("  Fix: install Chromium or set fetcher.control_url to a running browser")
	return false
}

func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
