package holiday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	appLog "holical/internal/log"
)

// YearPlaceholder is substituted with the four digit year in a dataset URL
// template, e.g. "https://example.com/holidays/{year}.json".
const YearPlaceholder = "{year}"

// metaEntry holds HTTP cache validators for one year's dataset.
type metaEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FetchResult describes the outcome of mirroring one year's dataset.
type FetchResult struct {
	Year      int
	Path      string
	Entries   int
	FromCache bool // true if the local copy was kept (304 or upstream failure)
}

// Fetcher mirrors upstream per-year datasets into a local directory that a
// DirLoader then reads. Conditional requests use ETag / Last-Modified.
type Fetcher struct {
	client      *http.Client
	urlTemplate string
	dataDir     string
}

// NewFetcher creates a Fetcher. urlTemplate must contain YearPlaceholder.
func NewFetcher(urlTemplate, dataDir string) (*Fetcher, error) {
	if !strings.Contains(urlTemplate, YearPlaceholder) {
		return nil, fmt.Errorf("dataset url %q has no %s placeholder", urlTemplate, YearPlaceholder)
	}
	if dataDir == "" {
		dataDir = "./holidays_api/data"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		urlTemplate: urlTemplate,
		dataDir:     dataDir,
	}, nil
}

// FetchAll fetches every year in turn. Failures are logged and collected;
// results only contain years that have a usable local copy.
func (f *Fetcher) FetchAll(ctx context.Context, years []int) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(years))
	errs := make([]error, 0)

	for _, year := range years {
		res, err := f.FetchYear(ctx, year)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("holiday dataset fetch failed", err, "year", year)
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// FetchYear downloads the dataset for year unless the upstream copy is
// unchanged. The body is validated before it replaces the local file.
func (f *Fetcher) FetchYear(ctx context.Context, year int) (FetchResult, error) {
	url := strings.ReplaceAll(f.urlTemplate, YearPlaceholder, strconv.Itoa(year))
	path := filepath.Join(f.dataDir, DatasetFileName(year))
	res := FetchResult{Year: year, Path: path}

	if err := os.MkdirAll(f.metaDir(), 0o755); err != nil {
		return res, err
	}

	meta, _ := f.loadMeta(year)
	cached, cacheErr := DirLoader{Dir: f.dataDir}.Load(year)
	haveCache := cacheErr == nil

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return res, err
	}
	if haveCache {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("holiday dataset fetch start", "year", year, "url", url)

	resp, err := f.client.Do(req)
	if err != nil {
		if haveCache {
			appLog.Error("holiday dataset fetch network error, keeping local copy", err, "year", year)
			res.Entries = len(cached)
			res.FromCache = true
			return res, nil
		}
		return res, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return res, err
		}
		ds, err := decodeDataset(body)
		if err != nil {
			return res, fmt.Errorf("year %d: %w", year, err)
		}
		if err := writeFileAtomic(path, body); err != nil {
			return res, err
		}
		newMeta := metaEntry{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveMeta(year, newMeta); err != nil {
			appLog.Error("holiday dataset meta save failed", err, "year", year)
		}
		appLog.Info("holiday dataset fetch success", "year", year, "entries", len(ds))
		res.Entries = len(ds)
		return res, nil

	case http.StatusNotModified:
		if !haveCache {
			return res, errors.New("received 304 Not Modified but no local dataset available")
		}
		appLog.Info("holiday dataset not modified", "year", year)
		res.Entries = len(cached)
		res.FromCache = true
		return res, nil

	default:
		if haveCache {
			appLog.Error("holiday dataset fetch non-OK, keeping local copy", errors.New(resp.Status), "year", year, "status", resp.StatusCode)
			res.Entries = len(cached)
			res.FromCache = true
			return res, nil
		}
		return res, fmt.Errorf("year %d: %s", year, resp.Status)
	}
}

func (f *Fetcher) metaDir() string {
	return filepath.Join(f.dataDir, ".meta")
}

func (f *Fetcher) metaPath(year int) string {
	return filepath.Join(f.metaDir(), strconv.Itoa(year)+".json")
}

func (f *Fetcher) loadMeta(year int) (metaEntry, error) {
	var meta metaEntry
	data, err := os.ReadFile(f.metaPath(year))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return metaEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveMeta(year int, meta metaEntry) error {
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.metaPath(year), data, 0o644)
}

// writeFileAtomic replaces path via a temp file in the same directory so a
// concurrent DirLoader never sees a partial dataset.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".holiday-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
