// Package exchange resolves tickers to market metadata: asset class,
// exchange trading hours, timezone, and futures contract settings. The
// metadata ships embedded; callers treat lookups as a read-only service.
package exchange

import (
	_ "embed"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed data/exchanges.yml
var exchangesYAML []byte

//go:embed data/assets.yml
var assetsYAML []byte

// Session is one trading session in exchange-local wall time ("HH:MM").
type Session struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Zero reports whether the session is unset.
func (s Session) Zero() bool { return s.Start == "" && s.End == "" }

// Hours holds an exchange's timezone and named sessions.
type Hours struct {
	Exchange string
	TZ       string             `yaml:"tz"`
	Sessions map[string]Session `yaml:"sessions"`
}

// Session returns the named session.
func (h *Hours) Session(name string) (Session, bool) {
	s, ok := h.Sessions[name]
	return s, ok
}

// Location loads the exchange timezone.
func (h *Hours) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(h.TZ)
	return loc, eris.Wrapf(err, "exchange: load tz %s", h.TZ)
}

type assetEntry struct {
	Tickers   []string `yaml:"tickers"`
	Countries []string `yaml:"countries"`
	Exch      string   `yaml:"exch"`
	IsFutures bool     `yaml:"is_futures"`
	Freq      string   `yaml:"freq"`
}

// Info is the resolved market metadata for one ticker.
type Info struct {
	Asset     string
	Root      string
	Hours     *Hours
	IsFutures bool
	Freq      string
}

var (
	exchanges map[string]*Hours
	assets    map[string][]assetEntry
)

func init() {
	if err := yaml.Unmarshal(exchangesYAML, &exchanges); err != nil {
		panic("exchange: bad exchanges.yml: " + err.Error())
	}
	for name, h := range exchanges {
		h.Exchange = name
	}
	if err := yaml.Unmarshal(assetsYAML, &assets); err != nil {
		panic("exchange: bad assets.yml: " + err.Error())
	}
}

// Asset returns the asset-class suffix of a ticker ("ES1 Index" ->
// "Index"), or "" when the ticker has no suffix.
func Asset(ticker string) string {
	tokens := strings.Fields(ticker)
	if len(tokens) < 2 {
		return ""
	}
	return tokens[len(tokens)-1]
}

// Root returns the ticker without its asset suffix ("ES1 Index" -> "ES1").
func Root(ticker string) string {
	tokens := strings.Fields(ticker)
	if len(tokens) < 2 {
		return ticker
	}
	return strings.Join(tokens[:len(tokens)-1], " ")
}

// MarketInfo resolves metadata for a ticker. The second return is false
// when no entry matches; callers treat that as missing metadata, not an
// error.
func MarketInfo(ticker string) (*Info, bool) {
	asset := Asset(ticker)
	entries, ok := assets[asset]
	if !ok {
		return nil, false
	}
	root := Root(ticker)

	for _, e := range entries {
		if !matches(e, root, ticker) {
			continue
		}
		hours, ok := exchanges[e.Exch]
		if !ok {
			return nil, false
		}
		return &Info{
			Asset:     asset,
			Root:      root,
			Hours:     hours,
			IsFutures: e.IsFutures,
			Freq:      e.Freq,
		}, true
	}
	return nil, false
}

func matches(e assetEntry, root, ticker string) bool {
	// Equity entries key on the country code ("AAPL US Equity" -> US).
	if len(e.Countries) > 0 {
		tokens := strings.Fields(ticker)
		if len(tokens) < 3 {
			return false
		}
		country := tokens[len(tokens)-2]
		for _, c := range e.Countries {
			if c == country {
				return true
			}
		}
		return false
	}

	for _, t := range e.Tickers {
		if root == t {
			return true
		}
		// Generic and dated contracts share the listed prefix: ES1, ESA
		// and ESH24 all match ES.
		if strings.HasPrefix(root, t) && len(root) > len(t) {
			rest := root[len(t):]
			if isContractSuffix(rest) {
				return true
			}
		}
	}
	return false
}

// isContractSuffix accepts chain digits ("1"), generic letters ("A") and
// month-code/year tails ("H24").
func isContractSuffix(s string) bool {
	if len(s) == 0 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
