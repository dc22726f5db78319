package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/cache"
	"github.com/ziadkadry99/memberrec/internal/freshness"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Refresh stale members periodically until interrupted",
	Long: `Runs the freshness pipeline immediately and then every --interval
(default hourly, without enhancement) until interrupted. A run that is
still in progress when the next tick arrives is not overlapped.`,
	Annotations: map[string]string{annotationService: "true"},
	RunE:        runSchedule,
}

func init() {
	scheduleCmd.Flags().Duration("interval", 0, "time between runs (default from config)")
	scheduleCmd.Flags().String("version", "", "pipeline version to refresh (default from config)")
	scheduleCmd.Flags().Bool("enhance", false, "regenerate summaries with the LLM on every run")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sc := a.cfg.Schedule
	if cmd.Flags().Changed("interval") {
		sc.Interval, _ = cmd.Flags().GetDuration("interval")
	}
	if v, _ := cmd.Flags().GetString("version"); v != "" {
		sc.Version = v
	}
	if cmd.Flags().Changed("enhance") {
		sc.Enhance, _ = cmd.Flags().GetBool("enhance")
	}
	if sc.Interval <= 0 {
		return errors.New("--interval must be positive")
	}

	p, err := a.pipeline(sc.Enhance)
	if err != nil {
		return err
	}

	a.logger.Info("scheduler started",
		zap.String("version", sc.Version),
		zap.Duration("interval", sc.Interval),
		zap.Bool("enhance", sc.Enhance),
	)
	return scheduleLoop(ctx, sc.Interval, func(ctx context.Context) {
		res, err := p.Run(ctx, sc.Version, freshness.RunOptions{Enhance: sc.Enhance})
		if err != nil {
			a.logger.Error("scheduled refresh failed", zap.Error(err))
			return
		}
		a.logger.Info("scheduled refresh done",
			zap.String("run_id", res.RunID),
			zap.Int("stale", res.Stale),
			zap.Int("vectorized", res.Vectorized),
		)
		if sq, ok := a.cache.(*cache.SQLiteCache); ok {
			if n, err := sq.Purge(ctx); err != nil {
				a.logger.Warn("purging expired cache entries", zap.Error(err))
			} else if n > 0 {
				a.logger.Info("purged expired cache entries", zap.Int64("entries", n))
			}
		}
	})
}

// scheduleLoop calls run now and after every interval until ctx is done.
// Runs never overlap; ticks missed while a run is in progress are dropped.
func scheduleLoop(ctx context.Context, interval time.Duration, run func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
