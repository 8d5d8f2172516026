package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/feedmeta/feedmeta/internal/output"
)

var settingsFile string

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the persisted settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context(), appConfig, sessionOptions{})
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		status, err := sess.sched.GetStatus(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, status.Settings, func() string { return output.SettingsTable(status.Settings) })
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key=value...]",
	Short: "Merge settings and persist them",
	Long: `Merge settings into the persisted document. Values are parsed as
booleans or integers where possible. Nested colour keys use a dotted path:

  feedmeta settings set maxRequestsPerMinute=30 followerColors.gt1m=#ff0000

--file merges a YAML or JSON document first; key=value pairs win.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := map[string]any{}
		if settingsFile != "" {
			fromFile, err := readSettingsFile(settingsFile)
			if err != nil {
				return err
			}
			patch = fromFile
		}
		pairs, err := parseSettingPairs(args)
		if err != nil {
			return err
		}
		mergePatch(patch, pairs)
		if len(patch) == 0 {
			return fmt.Errorf("nothing to set: pass key=value pairs or --file")
		}

		sess, err := openSession(cmd.Context(), appConfig, sessionOptions{})
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		settings, err := sess.sched.SaveSettings(cmd.Context(), patch)
		if err != nil {
			return err
		}
		return render(cmd, settings, func() string { return output.SettingsTable(settings) })
	},
}

func readSettingsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	// YAML is a superset of JSON.
	var patch map[string]any
	if err := yaml.Unmarshal(data, &patch); err != nil {
		return nil, fmt.Errorf("decode settings file: %w", err)
	}
	if patch == nil {
		patch = map[string]any{}
	}
	return patch, nil
}

func parseSettingPairs(args []string) (map[string]any, error) {
	patch := map[string]any{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		value := parseSettingValue(strings.TrimSpace(raw))

		parent, child, nested := strings.Cut(key, ".")
		if !nested {
			patch[key] = value
			continue
		}
		inner, _ := patch[parent].(map[string]any)
		if inner == nil {
			inner = map[string]any{}
			patch[parent] = inner
		}
		inner[child] = value
	}
	return patch, nil
}

func parseSettingValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// mergePatch overlays src onto dst, merging one level of nested objects.
func mergePatch(dst, src map[string]any) {
	for k, v := range src {
		incoming, isMap := v.(map[string]any)
		current, hasMap := dst[k].(map[string]any)
		if isMap && hasMap {
			for ik, iv := range incoming {
				current[ik] = iv
			}
			continue
		}
		dst[k] = v
	}
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	addFormatFlag(settingsShowCmd)
	addFormatFlag(settingsSetCmd)
	settingsSetCmd.Flags().StringVarP(&settingsFile, "file", "f", "", "YAML or JSON settings document to merge")
}
