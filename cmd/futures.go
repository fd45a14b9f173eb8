package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mktdata-cli/internal/exchange"
)

var (
	futAsOf string
	futFreq string
)

var futuresCmd = &cobra.Command{
	Use:   "futures",
	Short: "Resolve generic futures tickers to dated contracts",
}

var futuresResolveCmd = &cobra.Command{
	Use:   "resolve <generic>",
	Short: "Map a chain generic (ES1 Index) to its dated contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		asOf, err := parseAsOf()
		if err != nil {
			return err
		}

		freq := futFreq
		if freq == "" {
			if info, ok := exchange.MarketInfo(args[0]); ok {
				freq = info.Freq
			}
		}

		symbol, err := env.Resolver.Resolve(ctx, args[0], asOf, freq)
		if err != nil {
			return err
		}
		fmt.Println(symbol)
		return nil
	},
}

var futuresActiveCmd = &cobra.Command{
	Use:   "active <root>",
	Short: "Pick the active contract for a continuous series (ESA Index)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		asOf, err := parseAsOf()
		if err != nil {
			return err
		}

		symbol, err := env.Resolver.Active(ctx, args[0], asOf)
		if err != nil {
			return err
		}
		fmt.Println(symbol)
		return nil
	},
}

func parseAsOf() (time.Time, error) {
	if futAsOf == "" {
		return time.Now().UTC(), nil
	}
	asOf, err := time.Parse("2006-01-02", futAsOf)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse --asof %q", futAsOf)
	}
	return asOf, nil
}

func init() {
	futuresCmd.PersistentFlags().StringVar(&futAsOf, "asof", "", "as-of date YYYY-MM-DD (default today)")
	futuresResolveCmd.Flags().StringVar(&futFreq, "freq", "", "roll frequency M or Q (default from exchange metadata)")
	futuresCmd.AddCommand(futuresResolveCmd)
	futuresCmd.AddCommand(futuresActiveCmd)
	rootCmd.AddCommand(futuresCmd)
}
