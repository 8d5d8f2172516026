package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/feedmeta/feedmeta/internal/observability"
	"github.com/feedmeta/feedmeta/internal/output"
)

var cacheExportOut string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached profile entries",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached entry (settings are kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context(), appConfig, sessionOptions{})
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		if err := sess.sched.ClearCache(cmd.Context()); err != nil {
			return err
		}
		observability.CLILogger.Info("Cache cleared")
		return nil
	},
}

var cacheImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge entries from an export document",
	Long: `Merge cached entries from a JSON or YAML document shaped like
{"users": {"<handle>": {...}}}. Invalid handles and entries without data are
skipped; existing entries with the same key are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := readImportFile(args[0])
		if err != nil {
			return err
		}

		sess, err := openSession(cmd.Context(), appConfig, sessionOptions{})
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		n, err := sess.sched.ImportCache(cmd.Context(), users)
		if err != nil {
			return err
		}
		observability.CLILogger.Info("Cache imported",
			zap.String("file", args[0]),
			zap.Int("imported", n))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", n)
		return err
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every cached entry as an import-compatible document",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context(), appConfig, sessionOptions{})
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		users, err := sess.sched.ExportCache(cmd.Context())
		if err != nil {
			return err
		}

		sink, err := openSink(cmd, cacheExportOut)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format == output.FormatTable && sink.path == "-" {
			status, err := sess.sched.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, output.CacheTable(users, status.Settings.FollowerColors))
			return err
		}
		if format == output.FormatTable {
			format = output.FormatJSON
		}

		rendered, err := output.Render(format, map[string]any{"users": users}, nil)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
			return err
		}
		if sink.path != "-" {
			observability.CLILogger.Info("Cache exported",
				zap.String("file", sink.path),
				zap.Int("entries", len(users)))
		}
		return nil
	},
}

func readImportFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode import document: %w", err)
		}
		if users, ok := doc["users"]; ok {
			return users, nil
		}
		return doc, nil
	default:
		if !json.Valid(data) {
			return nil, fmt.Errorf("decode import document: %s is not valid JSON", path)
		}
		return output.DecodeUsers(data)
	}
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd, cacheImportCmd, cacheExportCmd)
	addFormatFlag(cacheExportCmd)
	cacheExportCmd.Flags().StringVar(&cacheExportOut, "out", "", "Write the export to a file (default stdout)")
}
