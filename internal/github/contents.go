package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

// maxFileBytes bounds files read through the raw download URL.
const maxFileBytes = 32 << 20

// Location addresses a file in a repository: OWNER/REPO/PATH[@REF].
type Location struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

func (l Location) String() string {
	s := l.Owner + "/" + l.Repo + "/" + l.Path
	if l.Ref != "" {
		s += "@" + l.Ref
	}
	return s
}

// ParseLocation parses OWNER/REPO/PATH[@REF]. The ref is split at the last '@'.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	loc, ref := raw, ""
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		loc, ref = raw[:i], raw[i+1:]
		if ref == "" {
			return Location{}, fmt.Errorf("invalid github location %q: empty ref after '@'", raw)
		}
	}

	parts := strings.SplitN(strings.Trim(loc, "/"), "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || strings.Trim(parts[2], "/") == "" {
		return Location{}, fmt.Errorf("invalid github location %q: expected OWNER/REPO/PATH[@REF]", raw)
	}
	return Location{
		Owner: parts[0],
		Repo:  parts[1],
		Path:  strings.Trim(parts[2], "/"),
		Ref:   ref,
	}, nil
}

// FetchFile returns the contents of the file at loc.
//
// Files above the contents API inline limit are read from their raw download URL.
func (c *Client) FetchFile(ctx context.Context, loc Location) ([]byte, error) {
	var opts *github.RepositoryContentGetOptions
	if loc.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: loc.Ref}
	}

	file, dir, _, err := c.Client.Repositories.GetContents(ctx, loc.Owner, loc.Repo, loc.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", loc, err)
	}
	if file == nil {
		if dir != nil {
			return nil, fmt.Errorf("get %s: path is a directory", loc)
		}
		return nil, fmt.Errorf("get %s: empty response", loc)
	}
	if file.GetType() != "" && file.GetType() != "file" {
		return nil, fmt.Errorf("get %s: unsupported content type %q", loc, file.GetType())
	}

	if file.GetEncoding() == "none" || (file.Content == nil && file.GetDownloadURL() != "") {
		return c.download(ctx, loc, file.GetDownloadURL())
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", loc, err)
	}
	return []byte(content), nil
}

func (c *Client) download(ctx context.Context, loc Location, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("get %s: no download url for large file", loc)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", loc, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("download %s: unexpected status %d %s", loc, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", loc, err)
	}
	if len(b) > maxFileBytes {
		return nil, errors.New("download " + loc.String() + ": file too large")
	}
	return b, nil
}
