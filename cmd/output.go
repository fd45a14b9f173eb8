package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mktdata-cli/internal/model"
)

var outputJSON bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "emit JSON instead of CSV")
}

// printRows writes a slice of row structs to stdout, CSV by default or
// JSON with --json.
func printRows(rows any) error {
	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "marshal output")
	}
	_, err = os.Stdout.Write(data)
	return err
}

// parseOverrides turns repeated key=value flags into overrides.
func parseOverrides(pairs []string) (model.Overrides, error) {
	var ovrds model.Overrides
	for _, p := range pairs {
		k, v, ok := parseKV(p)
		if !ok {
			return nil, eris.Errorf("malformed override %q, want key=value", p)
		}
		ovrds = append(ovrds, model.Override{Key: k, Value: v})
	}
	return ovrds, nil
}

func parseKV(pair string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(pair, "=")
	return key, value, ok && key != ""
}
