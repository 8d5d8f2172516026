package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/core/engine"
	"github.com/feedmeta/feedmeta/internal/observability"
	"github.com/feedmeta/feedmeta/internal/output"
)

var (
	requestWait    bool
	requestTimeout time.Duration
)

var requestCmd = &cobra.Command{
	Use:   "request <handle...>",
	Short: "Look up profile metrics, fetching stale or missing entries",
	Long: `Answer each handle from the cache and queue a fetch for handles that are
missing or stale. With --wait the command keeps the scheduler running until
every queued handle has been fetched or the timeout expires.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context(), appConfig, sessionOptions{withFetcher: requestWait})
		if err != nil {
			return err
		}
		defer sess.Close() // nolint:errcheck // best-effort cleanup

		events, cancel := sess.sched.Notifier().Subscribe()
		defer cancel()

		results, err := sess.sched.RequestEntities(cmd.Context(), args)
		if err != nil {
			return err
		}

		if requestWait {
			ctx, stop := context.WithTimeout(cmd.Context(), requestTimeout)
			defer stop()
			if err := awaitQueued(ctx, results, events); err != nil {
				observability.CLILogger.Warn("Stopped waiting for fetches", zap.Error(err))
			}
		}

		status, err := sess.sched.GetStatus(cmd.Context())
		if err != nil {
			return err
		}
		observability.CLILogger.Debug(output.Summary(results))
		return render(cmd, results, func() string {
			return output.EntitiesTable(results, status.Settings.FollowerColors)
		})
	},
}

// awaitQueued folds entityUpdated events into results until no key is
// still queued.
func awaitQueued(ctx context.Context, results map[string]engine.EntityResult, events <-chan engine.Event) error {
	pending := 0
	for _, r := range results {
		if r.Status == engine.StatusQueued {
			pending++
		}
	}

	for pending > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d keys still queued: %w", pending, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed with %d keys queued", pending)
			}
			switch ev.Type {
			case engine.EventEntityUpdated:
				r, tracked := results[ev.Key]
				if !tracked || r.Status != engine.StatusQueued {
					continue
				}
				results[ev.Key] = engine.EntityResult{Status: engine.StatusFresh, Value: ev.Value}
				pending--
			case engine.EventRateLimitEntered:
				observability.CLILogger.Warn("Rate limited; fetching paused",
					zap.Time("until", time.UnixMilli(ev.Until).UTC()))
			}
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(requestCmd)
	addFormatFlag(requestCmd)
	requestCmd.Flags().BoolVarP(&requestWait, "wait", "w", false, "wait for queued handles to be fetched")
	requestCmd.Flags().DurationVar(&requestTimeout, "timeout", 2*time.Minute, "maximum time to wait with --wait")
}
