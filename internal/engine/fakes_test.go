package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"winmanifests/internal/catalog"
	"winmanifests/internal/extract"
	"winmanifests/internal/fetch"
	"winmanifests/internal/output"
	"winmanifests/internal/updates"
)

func cuTitle(version, kb string) string {
	return fmt.Sprintf("2021-05 Cumulative Update for Windows 10 Version %s for x64-based Systems (%s)", version, kb)
}

type fakeCatalog struct {
	mu         sync.Mutex
	entries    map[string][]catalog.Entry // by search terms
	urls       map[string]string          // by entry id
	searchErr  error
	searches   []string
	resolved   []string
	resolveErr map[string]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		entries:    map[string][]catalog.Entry{},
		urls:       map[string]string{},
		resolveErr: map[string]error{},
	}
}

// add lists a standard cumulative update entry for (version, kb).
func (f *fakeCatalog) add(version, kb string) {
	f.addEntry(kb, catalog.Entry{ID: "id-" + version + "-" + kb, Title: cuTitle(version, kb)})
}

func (f *fakeCatalog) addEntry(kb string, e catalog.Entry) {
	terms := kb + " x64"
	f.entries[terms] = append(f.entries[terms], e)
	f.urls[e.ID] = "http://dl.example/" + strings.ToLower(kb) + "-" + e.ID + ".msu"
}

func (f *fakeCatalog) Search(_ context.Context, terms string) ([]catalog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, terms)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.entries[terms], nil
}

func (f *fakeCatalog) Resolve(_ context.Context, id string) (catalog.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, id)
	if err := f.resolveErr[id]; err != nil {
		return catalog.Download{}, err
	}
	u, ok := f.urls[id]
	if !ok {
		return catalog.Download{}, catalog.ErrDownloadNotFound
	}
	return catalog.Download{URL: u}, nil
}

func (f *fakeCatalog) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

type fakeFetcher struct {
	mu      sync.Mutex
	dirs    []string
	failKB  map[string]error
	onFetch func(kb string)
}

func (f *fakeFetcher) Fetch(_ context.Context, url, dir string) (fetch.Package, error) {
	kb := filepath.Base(dir)
	f.mu.Lock()
	f.dirs = append(f.dirs, dir)
	hook := f.onFetch
	err := f.failKB[kb]
	f.mu.Unlock()

	if hook != nil {
		hook(kb)
	}
	if err != nil {
		return fetch.Package{}, fmt.Errorf("%w: %w", fetch.ErrFetchFailed, err)
	}
	return fetch.Package{Dir: dir, File: filepath.Join(dir, path.Base(url)), Size: 100}, nil
}

func (f *fakeFetcher) fetchedKBs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, d := range f.dirs {
		out = append(out, filepath.Base(d))
	}
	return out
}

type fakeExtractor struct {
	mu        sync.Mutex
	failKB    map[string]error
	calls     []string
	extractFn func(kb string) error
}

func (f *fakeExtractor) Extract(_ context.Context, pkg fetch.Package) (extract.ManifestSet, error) {
	kb := filepath.Base(pkg.Dir)
	f.mu.Lock()
	f.calls = append(f.calls, kb)
	err := f.failKB[kb]
	fn := f.extractFn
	f.mu.Unlock()

	if err == nil && fn != nil {
		err = fn(kb)
	}
	if err != nil {
		return extract.ManifestSet{}, fmt.Errorf("%w: %w", extract.ErrExtractionFailed, err)
	}
	return extract.ManifestSet{Dir: pkg.Dir, Files: []string{strings.ToLower(kb) + ".manifest"}}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	items []any
}

func (s *recordingSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, v)
	return nil
}

func (s *recordingSink) results() []updates.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []updates.Result
	for _, it := range s.items {
		if r, ok := it.(updates.Result); ok {
			out = append(out, r)
		}
	}
	return out
}

// trace renders the sink contents as "type:version/kb" lines.
func (s *recordingSink) trace() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, it := range s.items {
		switch t := it.(type) {
		case output.Event:
			if t.KB == "" {
				out = append(out, t.Type+":"+t.Version)
				continue
			}
			out = append(out, t.Type+":"+t.Version+"/"+t.KB)
		case updates.Result:
			out = append(out, string(t.Status)+":"+t.Version+"/"+t.KB)
		}
	}
	return out
}

// fakeDownloader writes a small file where aria2c would.
type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
}

func (d *fakeDownloader) Download(_ context.Context, url, dir, name string) error {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	d.mu.Unlock()
	return os.WriteFile(filepath.Join(dir, name), []byte("MSCF package"), 0o644)
}

// fakeCab simulates an update package holding a payload cabinet and the scan
// cabinet; the payload holds one manifest.
type fakeCab struct{}

func (fakeCab) Extract(_ context.Context, pattern, archive, dest string) error {
	var names []string
	switch {
	case pattern == "*.cab" && strings.HasSuffix(archive, ".msu"):
		names = []string{"Windows10.0-payload.cab", "WSUSSCAN.cab"}
	case pattern == "*.manifest" && strings.HasSuffix(archive, "payload.cab"):
		names = []string{"amd64_microsoft-windows-kernel.manifest"}
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dest, n), []byte("x"), 0o644); err != nil {
			return err
		}
	}
	return nil
}
