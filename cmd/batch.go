package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mktdata-cli/internal/model"
	"github.com/sells-group/mktdata-cli/internal/reconcile"
)

var (
	batchStart string
	batchEnd   string
	batchEvent string
)

var batchCmd = &cobra.Command{
	Use:   "batch <ticker>...",
	Short: "Download intraday bars for many tickers and days unattended",
	Long:  "Walks every weekday in the range for every ticker, skipping days already on disk and days too recent to be complete. Individual failures are logged and do not abort the run.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		start, err := time.Parse("2006-01-02", batchStart)
		if err != nil {
			return eris.Wrapf(err, "parse --start %q", batchStart)
		}
		end := time.Now().UTC()
		if batchEnd != "" {
			end, err = time.Parse("2006-01-02", batchEnd)
			if err != nil {
				return eris.Wrapf(err, "parse --end %q", batchEnd)
			}
		}

		days := weekdayRange(start, end)
		return downloadBars(ctx, env, args, days, model.EventType(batchEvent), cfg.Batch.Workers)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchStart, "start", "", "first day YYYY-MM-DD")
	batchCmd.Flags().StringVar(&batchEnd, "end", "", "last day YYYY-MM-DD (default today)")
	batchCmd.Flags().StringVar(&batchEvent, "event", string(model.EventTrade), "event stream")
	_ = batchCmd.MarkFlagRequired("start")
	rootCmd.AddCommand(batchCmd)
}

// weekdayRange lists every weekday from start through end inclusive.
func weekdayRange(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		days = append(days, d)
	}
	return days
}

// downloadBars fans (ticker, day) pairs out over a bounded worker pool.
func downloadBars(ctx context.Context, env *queryEnv, tickers []string, days []time.Time, event model.EventType, workers int) error {
	zap.L().Info("starting batch download",
		zap.Int("tickers", len(tickers)),
		zap.Int("days", len(days)),
		zap.Int("workers", workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var fetched, empty atomic.Int64

	for _, ticker := range tickers {
		for _, day := range days {
			g.Go(func() error {
				bars, err := env.Engine.Bars(gctx, ticker, day, reconcile.BarOptions{
					Event: event,
					Batch: true,
				})
				if err != nil {
					// Gateway errors are logged, not fatal to the run.
					zap.L().Error("bar download failed",
						zap.String("ticker", ticker),
						zap.String("date", day.Format("2006-01-02")),
						zap.Error(err),
					)
					return nil
				}
				if len(bars) == 0 {
					empty.Add(1)
				} else {
					fetched.Add(1)
				}
				return gctx.Err()
			})
		}
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch download")
	}

	zap.L().Info("batch complete",
		zap.Int64("fetched", fetched.Load()),
		zap.Int64("empty_or_skipped", empty.Load()),
	)
	return nil
}
