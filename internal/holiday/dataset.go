package holiday

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	appLog "holical/internal/log"
)

// ErrDatasetNotFound is returned by a Loader when no resource exists for the
// requested year.
var ErrDatasetNotFound = errors.New("holiday dataset not found")

// Dataset maps a four digit MMDD key to a status code. A non-zero status
// marks an official non-working day.
type Dataset map[string]int

// Key returns the MMDD key for t.
func Key(t time.Time) string {
	return fmt.Sprintf("%02d%02d", int(t.Month()), t.Day())
}

// Loader reads the dataset for a single year.
type Loader interface {
	Load(year int) (Dataset, error)
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc func(year int) (Dataset, error)

func (f LoaderFunc) Load(year int) (Dataset, error) { return f(year) }

// DirLoader reads "<Dir>/<year>_data.json" files.
type DirLoader struct {
	Dir string
}

// DatasetFileName is the on-disk name of a year's dataset.
func DatasetFileName(year int) string {
	return strconv.Itoa(year) + "_data.json"
}

func (l DirLoader) Load(year int) (Dataset, error) {
	path := filepath.Join(l.Dir, DatasetFileName(year))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, err
	}
	return decodeDataset(data)
}

// decodeDataset parses the JSON object form and drops keys that are not a
// valid MMDD pair.
func decodeDataset(data []byte) (Dataset, error) {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode holiday dataset: %w", err)
	}
	ds := make(Dataset, len(raw))
	for k, v := range raw {
		if !validKey(k) {
			appLog.Debug("holiday dataset: skipping invalid key", "key", k)
			continue
		}
		ds[k] = v
	}
	return ds, nil
}

func validKey(k string) bool {
	if len(k) != 4 {
		return false
	}
	n, err := strconv.Atoi(k)
	if err != nil {
		return false
	}
	month, day := n/100, n%100
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}

// Store is a year-keyed cache over a Loader. Each year is loaded at most once
// and is never reloaded or mutated afterwards. A failed load is cached as an
// empty dataset so the classifier falls back to the weekend rule.
type Store struct {
	loader Loader

	mu    sync.Mutex
	years map[int]Dataset
}

// NewStore constructs a Store backed by loader.
func NewStore(loader Loader) *Store {
	return &Store{
		loader: loader,
		years:  make(map[int]Dataset),
	}
}

// Year returns the dataset for year, loading it on first use.
func (s *Store) Year(year int) Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ds, ok := s.years[year]; ok {
		return ds
	}

	ds, err := s.loader.Load(year)
	switch {
	case errors.Is(err, ErrDatasetNotFound):
		appLog.Warn("holiday dataset missing; using weekend rule", "year", year)
		ds = Dataset{}
	case err != nil:
		appLog.Error("holiday dataset load failed; using weekend rule", err, "year", year)
		ds = Dataset{}
	case ds == nil:
		ds = Dataset{}
	default:
		appLog.Debug("holiday dataset loaded", "year", year, "entries", len(ds))
	}
	s.years[year] = ds
	return ds
}

// Lookup returns the status recorded for t and whether a record exists.
func (s *Store) Lookup(t time.Time) (int, bool) {
	status, ok := s.Year(t.Year())[Key(t)]
	return status, ok
}

// Loaded reports whether year has already been requested.
func (s *Store) Loaded(year int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.years[year]
	return ok
}
