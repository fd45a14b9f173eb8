package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is a Store that keeps miss counters in memory and discards
// audit entries. Used when no store backend is configured, and in tests.
type Memory struct {
	mu     sync.Mutex
	misses map[string]int
}

// NewMemory creates an in-memory Store.
func NewMemory() *Memory {
	return &Memory{misses: make(map[string]int)}
}

func (m *Memory) key(k MissKey) string {
	return k.Ticker + "|" + missDate(k.Date) + "|" + string(k.Event)
}

func (m *Memory) MissCount(_ context.Context, key MissKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.misses[m.key(key)], nil
}

func (m *Memory) RecordMiss(_ context.Context, key MissKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses[m.key(key)]++
	return nil
}

func (m *Memory) ResetMisses(_ context.Context, ticker string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cleared int
	for k := range m.misses {
		if ticker == "" || strings.HasPrefix(k, ticker+"|") {
			delete(m.misses, k)
			cleared++
		}
	}
	return cleared, nil
}

func (m *Memory) LogFetch(context.Context, FetchEntry) error { return nil }

func (m *Memory) GetStats(context.Context, time.Duration) (*Stats, error) {
	return &Stats{}, nil
}

func (m *Memory) Migrate(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
