// Package fetch downloads update packages to a deterministic local path.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"winmanifests/internal/tools"
)

// ErrFetchFailed is returned when the downloader exits unsuccessfully or leaves
// no file behind.
var ErrFetchFailed = errors.New("fetch failed")

// Package is a downloaded update package.
type Package struct {
	Dir  string
	File string
	Size int64
}

type Fetcher struct {
	downloader tools.Downloader
}

func New(d tools.Downloader) (*Fetcher, error) {
	if d == nil {
		return nil, errors.New("fetch: downloader is nil")
	}
	return &Fetcher{downloader: d}, nil
}

// Fetch downloads rawURL into dir, naming the file after the URL's last path
// segment. An existing file of the same name is overwritten.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir string) (Package, error) {
	name, err := FileName(rawURL)
	if err != nil {
		return Package{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Package{}, fmt.Errorf("create download directory: %w", err)
	}

	if err := f.downloader.Download(ctx, rawURL, dir, name); err != nil {
		return Package{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	file := filepath.Join(dir, name)
	st, err := os.Stat(file)
	if err != nil {
		return Package{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if !st.Mode().IsRegular() {
		return Package{}, fmt.Errorf("%w: %s is not a regular file", ErrFetchFailed, file)
	}
	return Package{Dir: dir, File: file, Size: st.Size()}, nil
}

// FileName returns the final path segment of rawURL.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse download url: %w", err)
	}
	name := path.Base(u.Path)
	switch name {
	case "", ".", "..", "/":
		return "", fmt.Errorf("download url %q has no file name", rawURL)
	}
	return name, nil
}
