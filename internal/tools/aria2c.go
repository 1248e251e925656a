package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// DefaultConnections is the number of parallel connections aria2c opens per download.
const DefaultConnections = 4

// MaxConnections is aria2c's upper bound for --max-connection-per-server.
const MaxConnections = 16

// Downloader retrieves url into dir/name, overwriting any existing file.
type Downloader interface {
	Download(ctx context.Context, url, dir, name string) error
}

// Aria2c downloads files with the aria2c accelerator.
type Aria2c struct {
	Path        string
	Connections int
	Runner      Runner
}

// DefaultAria2cPath returns the aria2c executable for the host platform.
// Windows hosts use the copy bundled under tools/.
func DefaultAria2cPath() string {
	if runtime.GOOS == "windows" {
		return `tools\aria2c.exe`
	}
	return "aria2c"
}

func (a Aria2c) Download(ctx context.Context, url, dir, name string) error {
	if a.Runner == nil {
		return errors.New("aria2c: runner is nil")
	}
	path := a.Path
	if path == "" {
		path = DefaultAria2cPath()
	}
	return a.Runner.Run(ctx, path, a.Args(url, dir, name)...)
}

// Args returns the aria2c command line for one download.
func (a Aria2c) Args(url, dir, name string) []string {
	conns := a.Connections
	if conns <= 0 {
		conns = DefaultConnections
	}
	return []string{
		fmt.Sprintf("-x%d", conns),
		"--allow-overwrite=true",
		"--auto-file-renaming=false",
		"-d", dir,
		"-o", name,
		url,
	}
}
