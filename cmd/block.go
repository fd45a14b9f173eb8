package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mktdata-cli/internal/reconcile"
)

var (
	blockFields    []string
	blockOverrides []string
	blockCache     bool
	blockDate      string
)

var blockCmd = &cobra.Command{
	Use:   "block <ticker>...",
	Short: "Fetch block (one-to-many) reference data",
	Long:  "Fetches fields that return multiple rows per ticker, like index membership or dividend history. Caching requires --date so each snapshot gets its own fragment.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		ovrds, err := parseOverrides(blockOverrides)
		if err != nil {
			return err
		}

		opts := reconcile.BulkOptions{Cache: blockCache, Overrides: ovrds}
		if blockDate != "" {
			opts.Date, err = time.Parse("2006-01-02", blockDate)
			if err != nil {
				return eris.Wrapf(err, "parse --date %q", blockDate)
			}
		}

		rows, err := env.Engine.Bulk(ctx, args, blockFields, opts)
		if err != nil {
			return err
		}
		return printRows(rows)
	},
}

func init() {
	blockCmd.Flags().StringSliceVar(&blockFields, "fields", nil, "fields to fetch (comma separated)")
	blockCmd.Flags().StringArrayVar(&blockOverrides, "override", nil, "request override key=value (repeatable)")
	blockCmd.Flags().BoolVar(&blockCache, "cache", true, "serve cached cells and persist fresh ones")
	blockCmd.Flags().StringVar(&blockDate, "date", "", "snapshot date YYYY-MM-DD; required for caching")
	_ = blockCmd.MarkFlagRequired("fields")
	rootCmd.AddCommand(blockCmd)
}
