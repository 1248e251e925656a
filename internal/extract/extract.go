// Package extract unpacks the nested cabinet archives of a cumulative update until
// its component manifests are on disk.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"winmanifests/internal/fetch"
	"winmanifests/internal/tools"
)

// ErrExtractionFailed is returned when the archive tool fails at any level.
var ErrExtractionFailed = errors.New("extraction failed")

// ScanContainer is the level-1 archive that carries scan metadata rather than
// payload. It is never descended into.
const ScanContainer = "WSUSSCAN.cab"

const (
	level1Dir = "extract1"
	level2Dir = "extract2"

	cabPattern      = "*.cab"
	manifestPattern = "*.manifest"
)

// ManifestSet lists the manifest files left in Dir.
type ManifestSet struct {
	Dir   string   `json:"dir"`
	Files []string `json:"files,omitempty"`
}

type Extractor struct {
	tool tools.CabTool
}

func New(tool tools.CabTool) (*Extractor, error) {
	if tool == nil {
		return nil, errors.New("extract: archive tool is nil")
	}
	return &Extractor{tool: tool}, nil
}

// Extract unpacks pkg into pkg.Dir and removes the intermediate directories and the
// package file. Cleanup after a failure is best-effort.
func (e *Extractor) Extract(ctx context.Context, pkg fetch.Package) (ManifestSet, error) {
	l1 := filepath.Join(pkg.Dir, level1Dir)
	l2 := filepath.Join(pkg.Dir, level2Dir)

	if err := e.unpack(ctx, pkg, l1, l2); err != nil {
		_ = cleanup(pkg, l1, l2)
		return ManifestSet{}, err
	}
	if err := cleanup(pkg, l1, l2); err != nil {
		return ManifestSet{}, fmt.Errorf("clean up extraction of %s: %w", filepath.Base(pkg.File), err)
	}

	files, err := listManifests(pkg.Dir)
	if err != nil {
		return ManifestSet{}, err
	}
	return ManifestSet{Dir: pkg.Dir, Files: files}, nil
}

func (e *Extractor) unpack(ctx context.Context, pkg fetch.Package, l1, l2 string) error {
	for _, dir := range []string{l1, l2} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
		}
	}

	if err := e.run(ctx, cabPattern, pkg.File, l1); err != nil {
		return err
	}

	level1, err := payloadCabs(l1)
	if err != nil {
		return err
	}
	for _, cab := range level1 {
		if err := e.run(ctx, cabPattern, cab, l2); err != nil {
			return err
		}
	}

	level2, err := payloadCabs(l2)
	if err != nil {
		return err
	}
	sources := level2
	if len(sources) == 0 {
		sources = level1
	}
	for _, cab := range sources {
		if err := e.run(ctx, manifestPattern, cab, pkg.Dir); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) run(ctx context.Context, pattern, archive, dest string) error {
	if err := e.tool.Extract(ctx, pattern, archive, dest); err != nil {
		return fmt.Errorf("%w: %s from %s: %w", ErrExtractionFailed, pattern, filepath.Base(archive), err)
	}
	return nil
}

// payloadCabs returns the .cab files directly inside dir, sorted, excluding the
// scan container.
func payloadCabs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	var out []string
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.EqualFold(filepath.Ext(name), ".cab") {
			continue
		}
		if strings.EqualFold(name, ScanContainer) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	slices.Sort(out)
	return out, nil
}

func listManifests(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	var out []string
	for _, de := range entries {
		if !de.IsDir() && strings.EqualFold(filepath.Ext(de.Name()), ".manifest") {
			out = append(out, de.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

func cleanup(pkg fetch.Package, dirs ...string) error {
	var errs []error
	for _, d := range dirs {
		if err := os.RemoveAll(d); err != nil {
			errs = append(errs, err)
		}
	}
	if pkg.File != "" {
		if err := os.Remove(pkg.File); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
