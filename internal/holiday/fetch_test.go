package holiday

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/matryer/is"
)

func TestFetcher_DownloadAndRevalidate(t *testing.T) {
	is := is.New(t)

	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/data/2024.json" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"0101": 1, "0210": 1}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f, err := NewFetcher(srv.URL+"/data/{year}.json", dir)
	is.NoErr(err)

	res, err := f.FetchYear(context.Background(), 2024)
	is.NoErr(err)
	is.Equal(res.Entries, 2)
	is.True(!res.FromCache)

	ds, err := DirLoader{Dir: dir}.Load(2024)
	is.NoErr(err)
	is.Equal(ds["0210"], 1)

	res, err = f.FetchYear(context.Background(), 2024)
	is.NoErr(err)
	is.True(res.FromCache)
	is.Equal(res.Entries, 2)
	is.Equal(notModified.Load(), int32(1))

	results, errs := f.FetchAll(context.Background(), []int{2024, 2025})
	is.Equal(len(results), 1)
	is.Equal(len(errs), 1)
	is.Equal(hits.Load(), int32(4))
}

func TestFetcher_RejectsInvalidBody(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f, err := NewFetcher(srv.URL+"/{year}", dir)
	is.NoErr(err)

	_, err = f.FetchYear(context.Background(), 2024)
	is.True(err != nil)

	_, statErr := os.Stat(filepath.Join(dir, DatasetFileName(2024)))
	is.True(os.IsNotExist(statErr))
}

func TestFetcher_KeepsLocalCopyOnUpstreamFailure(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	dir := t.TempDir()
	is.NoErr(os.WriteFile(filepath.Join(dir, DatasetFileName(2024)), []byte(`{"0101": 1}`), 0o644))

	f, err := NewFetcher(srv.URL+"/{year}.json", dir)
	is.NoErr(err)

	res, err := f.FetchYear(context.Background(), 2024)
	is.NoErr(err)
	is.True(res.FromCache)
	is.Equal(res.Entries, 1)
}

func TestNewFetcher_RequiresPlaceholder(t *testing.T) {
	is := is.New(t)

	_, err := NewFetcher("https://example.com/holidays.json", t.TempDir())
	is.True(err != nil)
}
