package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mktdata-cli/internal/model"
	"github.com/sells-group/mktdata-cli/internal/reconcile"
)

var (
	histFields    []string
	histStart     string
	histEnd       string
	histOverrides []string
	histElements  []string
)

var histCmd = &cobra.Command{
	Use:   "hist <ticker>...",
	Short: "Fetch a historical date-ranged series",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		start, err := time.Parse("2006-01-02", histStart)
		if err != nil {
			return eris.Wrapf(err, "parse --start %q", histStart)
		}
		end := time.Now()
		if histEnd != "" {
			end, err = time.Parse("2006-01-02", histEnd)
			if err != nil {
				return eris.Wrapf(err, "parse --end %q", histEnd)
			}
		}

		ovrds, err := parseOverrides(histOverrides)
		if err != nil {
			return err
		}
		elms, err := parseElements(histElements)
		if err != nil {
			return err
		}

		rows, err := env.Engine.Historical(ctx, args, histFields, start, end,
			reconcile.HistOptions{Elements: elms, Overrides: ovrds})
		if err != nil {
			return err
		}
		return printRows(rows)
	},
}

// parseElements turns key=value flags into request elements.
func parseElements(pairs []string) ([]model.Element, error) {
	var elms []model.Element
	for _, p := range pairs {
		k, v, ok := parseKV(p)
		if !ok {
			return nil, eris.Errorf("malformed element %q, want key=value", p)
		}
		elms = append(elms, model.Element{Name: k, Value: v})
	}
	return elms, nil
}

func init() {
	histCmd.Flags().StringSliceVar(&histFields, "fields", nil, "fields to fetch (comma separated)")
	histCmd.Flags().StringVar(&histStart, "start", "", "start date YYYY-MM-DD")
	histCmd.Flags().StringVar(&histEnd, "end", "", "end date YYYY-MM-DD (default today)")
	histCmd.Flags().StringArrayVar(&histOverrides, "override", nil, "request override key=value (repeatable)")
	histCmd.Flags().StringArrayVar(&histElements, "element", nil, "request element key=value (repeatable)")
	_ = histCmd.MarkFlagRequired("fields")
	_ = histCmd.MarkFlagRequired("start")
	rootCmd.AddCommand(histCmd)
}
