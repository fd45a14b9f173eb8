package model

import (
	"sort"
	"strings"
)

// Override is one field override forwarded to the terminal gateway,
// e.g. {"DVD_Start_Dt", "20180301"}.
type Override struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Overrides is an ordered set of query overrides. Cache identity depends
// on the canonical (sorted) rendering, so two calls with the same
// overrides in different order hit the same cache path.
type Overrides []Override

// Sorted returns a copy sorted by key, then value.
func (o Overrides) Sorted() Overrides {
	out := make(Overrides, len(o))
	copy(out, o)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Canonical renders the overrides as "k1=v1,k2=v2" in sorted order.
// Returns "" for an empty set.
func (o Overrides) Canonical() string {
	if len(o) == 0 {
		return ""
	}
	parts := make([]string, 0, len(o))
	for _, ov := range o.Sorted() {
		parts = append(parts, ov.Key+"="+ov.Value)
	}
	return strings.Join(parts, ",")
}

// Get returns the value for key and whether it was present.
func (o Overrides) Get(key string) (string, bool) {
	for _, ov := range o {
		if ov.Key == key {
			return ov.Value, true
		}
	}
	return "", false
}

// Element is a historical-query element setting (periodicity selection,
// fill options and the like), kept separate from field overrides the way
// the gateway API distinguishes them.
type Element struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
