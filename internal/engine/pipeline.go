package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"winmanifests/internal/catalog"
	"winmanifests/internal/extract"
	"winmanifests/internal/fetch"
	"winmanifests/internal/metrics"
	"winmanifests/internal/output"
	"winmanifests/internal/updates"
)

// Pipeline stages, as reported on failed results.
const (
	StageSelect  = "select"
	StageResolve = "resolve"
	StageFetch   = "fetch"
	StageExtract = "extract"
)

// Catalog finds catalog entries and their download locations.
type Catalog interface {
	Searcher
	Resolve(ctx context.Context, entryID string) (catalog.Download, error)
}

// PackageFetcher downloads an update package into a directory.
type PackageFetcher interface {
	Fetch(ctx context.Context, url, dir string) (fetch.Package, error)
}

// ManifestExtractor unpacks the manifests of a downloaded package.
type ManifestExtractor interface {
	Extract(ctx context.Context, pkg fetch.Package) (extract.ManifestSet, error)
}

// Sink receives lifecycle events and update results.
type Sink interface {
	Write(v any) error
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Catalog   Catalog
	Fetcher   PackageFetcher
	Extractor ManifestExtractor
	Output    Sink
	Metrics   *metrics.Recorder
}

// Options control a pipeline run. They are copied by NewPipeline.
type Options struct {
	// SkipVersions are Windows versions that are not processed at all.
	SkipVersions []string
	// SkipUpdateURLs are update URLs (as listed in the input) that are not processed.
	SkipUpdateURLs []string

	FailFast                 bool
	ConcurrentExtraction     bool
	MaxConcurrentExtractions int

	// OutDir is the output root; manifests land in <OutDir>/manifests/<version>/<KB>.
	OutDir string

	// DryRun stops after resolving the download URL.
	DryRun bool
}

// UpdateError is a failure of one update at one stage.
type UpdateError struct {
	Version string
	KB      string
	Stage   string
	Err     error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Version, e.KB, e.Stage, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// Summary tallies a run.
type Summary struct {
	Versions        int
	SkippedVersions int
	OK              int
	Failed          int
	Skipped         int
	Bytes           int64
	Manifests       int

	// Aborted is set when fail-fast stopped the run early.
	Aborted bool
}

type Pipeline struct {
	selector *Selector
	deps     Deps
	opts     Options

	skipVersions map[string]bool
	skipURLs     map[string]bool
}

func NewPipeline(selector *Selector, deps Deps, opts Options) (*Pipeline, error) {
	if selector == nil {
		return nil, errors.New("pipeline: selector is nil")
	}
	if deps.Catalog == nil {
		return nil, errors.New("pipeline: catalog is nil")
	}
	if deps.Fetcher == nil || deps.Extractor == nil {
		return nil, errors.New("pipeline: fetcher and extractor are required")
	}
	if opts.MaxConcurrentExtractions < 0 {
		return nil, fmt.Errorf("pipeline: max concurrent extractions must be >= 0, got %d", opts.MaxConcurrentExtractions)
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}

	p := &Pipeline{
		selector:     selector,
		deps:         deps,
		opts:         opts,
		skipVersions: make(map[string]bool, len(opts.SkipVersions)),
		skipURLs:     make(map[string]bool, len(opts.SkipUpdateURLs)),
	}
	for _, v := range opts.SkipVersions {
		p.skipVersions[v] = true
	}
	for _, u := range opts.SkipUpdateURLs {
		p.skipURLs[u] = true
	}
	p.opts.SkipVersions = nil
	p.opts.SkipUpdateURLs = nil
	return p, nil
}

// UpdateDir returns the directory manifests of (version, kb) are written to.
func (p *Pipeline) UpdateDir(version, kb string) string {
	return filepath.Join(p.opts.OutDir, "manifests", version, kb)
}

// run is the state of one Pipeline.Run call.
type run struct {
	p     *Pipeline
	sched *extractionScheduler

	mu  sync.Mutex
	sum Summary
}

// Run processes list in order. Every update failure is reported and, unless
// FailFast is set, the run continues with the next update. Outstanding
// background extractions are always joined before Run returns.
//
// The returned error is non-nil when fail-fast stopped the run (an
// *UpdateError) or ctx ended before every update was attempted.
func (p *Pipeline) Run(ctx context.Context, list updates.List) (Summary, error) {
	r := &run{
		p:     p,
		sched: newExtractionScheduler(ctx, p.opts.MaxConcurrentExtractions, p.opts.FailFast),
	}

	var firstErr error
versions:
	for _, v := range list {
		if p.skipVersions[v.Name] {
			r.update(func(s *Summary) { s.SkippedVersions++ })
			r.emit(output.Event{Type: output.EventVersionSkipped, Version: v.Name, Updates: len(v.Updates)})
			continue
		}

		r.update(func(s *Summary) { s.Versions++ })
		r.emit(output.Event{Type: output.EventVersionStarted, Version: v.Name})

		for _, u := range v.Updates {
			if r.sched.Stopped() {
				break versions
			}
			if p.skipURLs[u.URL] {
				r.finish(updates.Result{
					Version: v.Name,
					KB:      u.KB,
					Status:  updates.StatusSkipped,
					Message: "update url is in the skip list",
					URL:     u.URL,
				}, time.Now())
				continue
			}
			if err := r.process(ctx, Query{Version: v.Name, KB: u.KB}); err != nil && p.opts.FailFast {
				firstErr = err
				break versions
			}
		}
	}

	if err := r.sched.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}

	sum := r.summary()
	var ue *UpdateError
	if errors.As(firstErr, &ue) {
		sum.Aborted = true
		return sum, firstErr
	}
	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("run interrupted: %w", err)
	}
	return sum, firstErr
}

// process runs one update. Select, resolve and fetch happen on the calling
// goroutine; extraction is handed to the scheduler when concurrent
// extraction is enabled. A returned error has already been reported.
func (r *run) process(ctx context.Context, q Query) error {
	p := r.p
	start := time.Now()
	r.emit(output.Event{Type: output.EventUpdateStarted, Version: q.Version, KB: q.KB})

	var entry catalog.Entry
	if err := r.stage(StageSelect, func() (err error) {
		entry, err = p.selector.Select(ctx, p.deps.Catalog, q)
		return err
	}); err != nil {
		return r.fail(q, StageSelect, err, updates.Result{}, start)
	}

	var dl catalog.Download
	if err := r.stage(StageResolve, func() (err error) {
		dl, err = p.deps.Catalog.Resolve(ctx, entry.ID)
		return err
	}); err != nil {
		return r.fail(q, StageResolve, err, updates.Result{}, start)
	}

	if p.opts.DryRun {
		r.finish(updates.Result{
			Version: q.Version,
			KB:      q.KB,
			Status:  updates.StatusOK,
			Message: "dry run: " + entry.Title,
			URL:     dl.URL,
		}, start)
		return nil
	}

	var pkg fetch.Package
	if err := r.stage(StageFetch, func() (err error) {
		pkg, err = p.deps.Fetcher.Fetch(ctx, dl.URL, p.UpdateDir(q.Version, q.KB))
		return err
	}); err != nil {
		return r.fail(q, StageFetch, err, updates.Result{URL: dl.URL}, start)
	}
	p.deps.Metrics.AddBytes(pkg.Size)
	r.emit(output.Event{Type: output.EventUpdateDownloaded, Version: q.Version, KB: q.KB, URL: dl.URL, Bytes: pkg.Size})

	base := updates.Result{URL: dl.URL, Bytes: pkg.Size}
	task := func() error {
		done := p.deps.Metrics.ExtractionStarted()
		defer done()

		var set extract.ManifestSet
		if err := r.stage(StageExtract, func() (err error) {
			set, err = p.deps.Extractor.Extract(ctx, pkg)
			return err
		}); err != nil {
			return r.fail(q, StageExtract, err, base, start)
		}
		p.deps.Metrics.AddManifests(len(set.Files))

		res := base
		res.Version = q.Version
		res.KB = q.KB
		res.Status = updates.StatusOK
		res.Dir = set.Dir
		res.Manifests = set.Files
		r.finish(res, start)
		return nil
	}

	if p.opts.ConcurrentExtraction {
		r.sched.Go(task)
		return nil
	}
	return task()
}

func (r *run) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.p.deps.Metrics.ObserveStage(name, time.Since(start))
	return err
}

func (r *run) fail(q Query, stage string, err error, res updates.Result, start time.Time) error {
	ue := &UpdateError{Version: q.Version, KB: q.KB, Stage: stage, Err: err}
	res.Version = q.Version
	res.KB = q.KB
	res.Status = updates.StatusError
	res.Stage = stage
	res.Message = err.Error()
	r.finish(res, start)
	return ue
}

func (r *run) finish(res updates.Result, start time.Time) {
	res.DurationMS = time.Since(start).Milliseconds()

	r.update(func(s *Summary) {
		switch res.Status {
		case updates.StatusOK:
			s.OK++
		case updates.StatusError:
			s.Failed++
		case updates.StatusSkipped:
			s.Skipped++
		}
		s.Bytes += res.Bytes
		s.Manifests += len(res.Manifests)
	})
	r.p.deps.Metrics.UpdateFinished(string(res.Status))
	r.emit(res)
}

func (r *run) emit(v any) {
	if r.p.deps.Output == nil {
		return
	}
	_ = r.p.deps.Output.Write(v)
}

func (r *run) update(fn func(*Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.sum)
}

func (r *run) summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sum
}
