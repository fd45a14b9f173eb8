package reconcile

// loadedMatrix tracks which (ticker, field) cells of a request are
// already satisfied by cache. Built fresh per call and discarded after
// reconciliation. Every cell is either loaded or outstanding, never
// both.
type loadedMatrix struct {
	tickers []string
	fields  []string
	loaded  map[cellKey]bool
}

type cellKey struct {
	ticker string
	field  string
}

func newLoadedMatrix(tickers, fields []string) *loadedMatrix {
	return &loadedMatrix{
		tickers: tickers,
		fields:  fields,
		loaded:  make(map[cellKey]bool, len(tickers)*len(fields)),
	}
}

func (m *loadedMatrix) mark(ticker, field string) {
	m.loaded[cellKey{ticker, field}] = true
}

func (m *loadedMatrix) isLoaded(ticker, field string) bool {
	return m.loaded[cellKey{ticker, field}]
}

func (m *loadedMatrix) has(ticker, field string) bool {
	return contains(m.tickers, ticker) && contains(m.fields, field)
}

// outstanding returns the submatrix to fetch: every ticker with at least
// one missing cell crossed with every field with at least one missing
// cell. The fetch may therefore cover some already-loaded cells; callers
// de-duplicate on merge.
func (m *loadedMatrix) outstanding() (tickers, fields []string) {
	for _, t := range m.tickers {
		for _, f := range m.fields {
			if !m.isLoaded(t, f) {
				tickers = append(tickers, t)
				break
			}
		}
	}
	for _, f := range m.fields {
		for _, t := range m.tickers {
			if !m.isLoaded(t, f) {
				fields = append(fields, f)
				break
			}
		}
	}
	return tickers, fields
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// unique drops duplicate entries, preserving first-seen order.
func unique(xs []string) []string {
	seen := make(map[string]bool, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}
