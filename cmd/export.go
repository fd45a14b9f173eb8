package main

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/mktdata-cli/internal/model"
	"github.com/sells-group/mktdata-cli/internal/reconcile"
)

var (
	exportFields []string
	exportStart  string
	exportEnd    string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <ticker>...",
	Short: "Export reference and historical data to an XLSX workbook",
	Long:  "Writes two sheets: Reference with the current value of each field, and History with the daily series over the date range (when --start is given).",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		refRows, err := env.Engine.Reference(ctx, args, exportFields,
			reconcile.RefOptions{Cache: true})
		if err != nil {
			return err
		}

		var histRows []model.HistRow
		if exportStart != "" {
			start, err := time.Parse("2006-01-02", exportStart)
			if err != nil {
				return eris.Wrapf(err, "parse --start %q", exportStart)
			}
			end := time.Now().UTC()
			if exportEnd != "" {
				end, err = time.Parse("2006-01-02", exportEnd)
				if err != nil {
					return eris.Wrapf(err, "parse --end %q", exportEnd)
				}
			}
			histRows, err = env.Engine.Historical(ctx, args, exportFields, start, end,
				reconcile.HistOptions{})
			if err != nil {
				return err
			}
		}

		if err := writeWorkbook(exportOut, refRows, histRows); err != nil {
			return err
		}
		zap.L().Info("workbook written",
			zap.String("path", exportOut),
			zap.Int("ref_rows", len(refRows)),
			zap.Int("hist_rows", len(histRows)),
		)
		return nil
	},
}

// writeWorkbook lays out reference and historical rows as XLSX sheets.
func writeWorkbook(path string, refRows []model.RefRow, histRows []model.HistRow) error {
	f := xlsx.NewFile()

	ref, err := f.AddSheet("Reference")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}
	addRow(ref, "Ticker", "Field", "Value")
	for _, r := range refRows {
		addRow(ref, r.Ticker, r.Field, r.Value)
	}

	if len(histRows) > 0 {
		hist, err := f.AddSheet("History")
		if err != nil {
			return eris.Wrap(err, "xlsx: add sheet")
		}
		addRow(hist, "Date", "Ticker", "Field", "Value")
		for _, r := range histRows {
			addRow(hist, r.Date.Format("2006-01-02"), r.Ticker, r.Field,
				strconv.FormatFloat(r.Value, 'f', -1, 64))
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save workbook")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func init() {
	exportCmd.Flags().StringSliceVar(&exportFields, "fields", nil, "fields to export (comma separated)")
	exportCmd.Flags().StringVar(&exportStart, "start", "", "history start date YYYY-MM-DD (omits the History sheet when unset)")
	exportCmd.Flags().StringVar(&exportEnd, "end", "", "history end date YYYY-MM-DD (default today)")
	exportCmd.Flags().StringVar(&exportOut, "out", "export.xlsx", "output file path")
	_ = exportCmd.MarkFlagRequired("fields")
	rootCmd.AddCommand(exportCmd)
}
