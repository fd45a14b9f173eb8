// Package cache persists query fragments on disk, keyed deterministically
// by (ticker, field, date, overrides). Entries are whole-file overwrites,
// never appended to, and never expire on their own.
package cache

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/sells-group/mktdata-cli/internal/exchange"
	"github.com/sells-group/mktdata-cli/internal/model"
)

// Key identifies one reference/bulk cache fragment. Two keys with the
// same ticker, field, date and override set resolve to the same path
// regardless of override order.
type Key struct {
	Ticker    string
	Field     string
	Date      time.Time // zero when the query carries no as-of date
	HasDate   bool      // caching requires Date when set
	Ext       string    // fragment encoding, "csv" or "json"
	Overrides model.Overrides
}

// Path resolves the fragment path under root. The second return is false
// when the key does not qualify for caching, i.e. a dated key without a
// date.
func (k Key) Path(root string) (string, bool) {
	if k.HasDate && k.Date.IsZero() {
		return "", false
	}

	var parts []string
	if k.HasDate {
		parts = append(parts, "asof="+k.Date.Format("2006-01-02"))
	}
	if c := k.Overrides.Canonical(); c != "" {
		parts = append(parts, c)
	}
	stem := strings.Join(parts, ",")
	if stem == "" {
		stem = "ovrd=none"
	}

	ext := k.Ext
	if ext == "" {
		ext = "csv"
	}

	return filepath.Join(
		root,
		exchange.Asset(k.Ticker),
		sanitize(k.Ticker),
		k.Field,
		stem+"."+ext,
	), true
}

// BarKey identifies one intraday bar fragment: a single (ticker, date,
// event type) cell.
type BarKey struct {
	Ticker string
	Date   time.Time
	Event  model.EventType
}

// Path resolves the bar fragment path under root.
func (k BarKey) Path(root string) string {
	return filepath.Join(
		root,
		exchange.Asset(k.Ticker),
		sanitize(k.Ticker),
		string(k.Event),
		k.Date.Format("2006-01-02")+".csv",
	)
}

func sanitize(ticker string) string {
	r := strings.NewReplacer(" ", "_", "/", "_")
	return r.Replace(ticker)
}
