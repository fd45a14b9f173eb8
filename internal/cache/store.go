package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/afero"

	"github.com/sells-group/mktdata-cli/internal/model"
)

// Store reads and writes cache fragments under a root directory.
// Reference and bar fragments are columnar CSV; block fragments are JSON.
// Disk I/O only, no network.
type Store struct {
	fs   afero.Fs
	root string
}

// New creates a Store over the OS filesystem.
func New(root string) *Store {
	return &Store{fs: afero.NewOsFs(), root: root}
}

// NewWithFs creates a Store over an arbitrary filesystem. Tests use
// afero.NewMemMapFs.
func NewWithFs(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

// Resolve maps a key to its on-disk path. False when the key does not
// qualify for caching.
func (s *Store) Resolve(key Key) (string, bool) {
	return key.Path(s.root)
}

// ResolveBars maps a bar key to its on-disk path.
func (s *Store) ResolveBars(key BarKey) string {
	return key.Path(s.root)
}

// Exists reports whether a fragment is present at path.
func (s *Store) Exists(path string) bool {
	if path == "" {
		return false
	}
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}

// ReadRef loads a reference fragment.
func (s *Store) ReadRef(path string) ([]model.RefRow, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: read %s", path)
	}
	var rows []model.RefRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "cache: decode %s", path)
	}
	return rows, nil
}

// WriteRef persists a reference fragment, creating parent directories.
// Last write wins.
func (s *Store) WriteRef(path string, rows []model.RefRow) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", path)
	}
	return s.write(path, data)
}

// ReadBulk loads a block fragment.
func (s *Store) ReadBulk(path string) ([]model.BulkRow, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: read %s", path)
	}
	var rows []model.BulkRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "cache: decode %s", path)
	}
	return rows, nil
}

// WriteBulk persists a block fragment as JSON.
func (s *Store) WriteBulk(path string, rows []model.BulkRow) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", path)
	}
	return s.write(path, data)
}

// ReadBars loads an intraday bar fragment.
func (s *Store) ReadBars(path string) ([]model.Bar, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: read %s", path)
	}
	var bars []model.Bar
	if err := csvutil.Unmarshal(data, &bars); err != nil {
		return nil, eris.Wrapf(err, "cache: decode %s", path)
	}
	return bars, nil
}

// WriteBars persists an intraday bar fragment.
func (s *Store) WriteBars(path string, bars []model.Bar) error {
	data, err := csvutil.Marshal(bars)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", path)
	}
	return s.write(path, data)
}

func (s *Store) write(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return eris.Wrapf(err, "cache: mkdir for %s", path)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return eris.Wrapf(err, "cache: write %s", path)
	}
	return nil
}
