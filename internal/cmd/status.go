package cmd

import (
	"github.com/spf13/cobra"

	"github.com/feedmeta/feedmeta/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show settings and cache counters from the durable store",
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
		return render(cmd, status, func() string { return output.StatusTable(status) })
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addFormatFlag(statusCmd)
}
