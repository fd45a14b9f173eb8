package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mktdata-cli/internal/reconcile"
)

var (
	refFields    []string
	refOverrides []string
	refCache     bool
	refDate      string
)

var refCmd = &cobra.Command{
	Use:   "ref <ticker>...",
	Short: "Fetch point-in-time reference data",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		ovrds, err := parseOverrides(refOverrides)
		if err != nil {
			return err
		}

		opts := reconcile.RefOptions{Cache: refCache, Overrides: ovrds}
		if refDate != "" {
			d, err := time.Parse("2006-01-02", refDate)
			if err != nil {
				return eris.Wrapf(err, "parse --date %q", refDate)
			}
			opts.HasDate = true
			opts.Date = d
		}

		rows, err := env.Engine.Reference(ctx, args, refFields, opts)
		if err != nil {
			return err
		}
		return printRows(rows)
	},
}

func init() {
	refCmd.Flags().StringSliceVar(&refFields, "fields", nil, "fields to fetch (comma separated)")
	refCmd.Flags().StringArrayVar(&refOverrides, "override", nil, "request override key=value (repeatable)")
	refCmd.Flags().BoolVar(&refCache, "cache", true, "serve cached cells and persist fresh ones")
	refCmd.Flags().StringVar(&refDate, "date", "", "as-of date YYYY-MM-DD for dated snapshots")
	_ = refCmd.MarkFlagRequired("fields")
	rootCmd.AddCommand(refCmd)
}
