package tools

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
)

// CabTool extracts the members of a cabinet archive matching a glob pattern
// into a destination directory.
type CabTool interface {
	Extract(ctx context.Context, pattern, archive, destDir string) error
}

// Cabextract drives cabextract: cabextract -F <pattern> -d <dest> <archive>.
type Cabextract struct {
	Path   string
	Runner Runner
}

func (c Cabextract) Extract(ctx context.Context, pattern, archive, destDir string) error {
	if c.Runner == nil {
		return errors.New("cabextract: runner is nil")
	}
	path := c.Path
	if path == "" {
		path = "cabextract"
	}
	return c.Runner.Run(ctx, path, "-F", pattern, "-d", destDir, archive)
}

// Expand drives the Windows expand utility: expand -f:<pattern> <archive> <dest>.
type Expand struct {
	Path   string
	Runner Runner
}

func (e Expand) Extract(ctx context.Context, pattern, archive, destDir string) error {
	if e.Runner == nil {
		return errors.New("expand: runner is nil")
	}
	path := e.Path
	if path == "" {
		path = "expand"
	}
	return e.Runner.Run(ctx, path, "-f:"+pattern, archive, destDir)
}

// DefaultCabToolPath returns the extraction executable for the host platform.
func DefaultCabToolPath() string {
	if runtime.GOOS == "windows" {
		return "expand"
	}
	return "cabextract"
}

// NewCabTool picks the argument convention from the executable name: anything
// called expand (or expand.exe) gets the Windows syntax, the rest cabextract's.
func NewCabTool(path string, runner Runner) CabTool {
	if path == "" {
		path = DefaultCabToolPath()
	}
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".exe")
	if base == "expand" {
		return Expand{Path: path, Runner: runner}
	}
	return Cabextract{Path: path, Runner: runner}
}
