package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feedmeta/feedmeta/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output-format", "o", string(output.FormatTable), "Output format: table|json|yaml")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// openSink returns stdout for an empty path or "-", else a created file.
func openSink(cmd *cobra.Command, path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

// render writes v to the command's output in the selected format.
func render(cmd *cobra.Command, v any, table func() string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	rendered, err := output.Render(format, v, table)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
