package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mktdata-cli/internal/model"
	"github.com/sells-group/mktdata-cli/internal/reconcile"
)

var (
	barsDate    string
	barsEvent   string
	barsSession string
)

var barsCmd = &cobra.Command{
	Use:   "bars <ticker>",
	Short: "Fetch one day of intraday bars",
	Long:  "Fetches OHLCV bars for a single exchange day, resolving generic futures tickers to the active contract and localizing timestamps to the exchange timezone. Cached days are served from disk.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		date, err := time.Parse("2006-01-02", barsDate)
		if err != nil {
			return eris.Wrapf(err, "parse --date %q", barsDate)
		}

		bars, err := env.Engine.Intraday(ctx, args[0], date, reconcile.BarOptions{
			Event:   model.EventType(barsEvent),
			Session: barsSession,
		})
		if err != nil {
			return err
		}
		return printRows(bars)
	},
}

func init() {
	barsCmd.Flags().StringVar(&barsDate, "date", "", "exchange day YYYY-MM-DD")
	barsCmd.Flags().StringVar(&barsEvent, "event", string(model.EventTrade), "event stream (TRADE, BID, ASK, ...)")
	barsCmd.Flags().StringVar(&barsSession, "session", "", "session filter (day, am_open_30, allday_exact_0930_1000, ...)")
	_ = barsCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(barsCmd)
}
