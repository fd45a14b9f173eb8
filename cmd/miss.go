package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var missCmd = &cobra.Command{
	Use:   "miss",
	Short: "Inspect and reset the empty-result miss counters",
}

var missResetCmd = &cobra.Command{
	Use:   "reset [ticker]",
	Short: "Clear miss counters so suppressed lookups retry",
	Long:  "After two consecutive empty intraday results a (ticker, day, event) lookup stops hitting the gateway. Reset clears the counters for one ticker, or every ticker when none is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		var ticker string
		if len(args) > 0 {
			ticker = args[0]
		}

		cleared, err := env.Store.ResetMisses(ctx, ticker)
		if err != nil {
			return err
		}
		zap.L().Info("miss counters cleared",
			zap.String("ticker", ticker),
			zap.Int("cleared", cleared),
		)
		return nil
	},
}

func init() {
	missCmd.AddCommand(missResetCmd)
	rootCmd.AddCommand(missCmd)
}
