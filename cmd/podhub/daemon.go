package main

import (
	"os"
	"time"

	"github.com/matthewjhunter/podhub/internal/notify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Refresh every podcast in a loop with configurable interval",
		Long: `Continuously refresh all subscribed feeds on a timer.
Designed for running inside a container or as a background service.
Handles SIGINT/SIGTERM for graceful shutdown (the current cycle is cancelled).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = cfg.Refresh.Interval
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := cmd.Context()
			log := logger.WithField("component", "daemon")
			notifier := notify.NewNotifier(cfg.Notify, os.Stdout)
			log.WithField("interval", interval).Info("starting")

			for cycle := 1; ; cycle++ {
				start := time.Now()
				clog := log.WithField("cycle", cycle)

				res, err := engine.RefreshAll(ctx)
				if err != nil {
					clog.WithError(err).Warn("cycle error")
				} else {
					clog.WithFields(logrus.Fields{
						"shows":   res.Total,
						"added":   res.Added,
						"failed":  res.Failed,
						"elapsed": time.Since(start).Round(time.Millisecond),
					}).Info("cycle completed")
					if err := notifier.NotifyNewEpisodes(ctx, res); err != nil {
						clog.WithError(err).Warn("notify")
					}
				}

				// Wait for the next tick or a shutdown signal.
				timer := time.NewTimer(interval)
				select {
				case <-ctx.Done():
					timer.Stop()
					log.Info("received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "duration between refresh cycles, e.g. 15m or 1h (default: refresh.interval from config)")
	return cmd
}
