package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrAmbiguousDownloadInfo is returned when a download dialog does not list
	// exactly one file.
	ErrAmbiguousDownloadInfo = errors.New("expected exactly one file in download information")

	// ErrDownloadNotFound is returned when a download dialog yields no usable URL.
	ErrDownloadNotFound = errors.New("update not found in catalog")
)

// The dialog page assigns each file into a script array:
//
//	downloadInformation[0].files[0].url = 'https://.../windows10.0-kb123-x64.msu';
var fileURLAssignment = regexp.MustCompile(`(?m)^[ \t]*downloadInformation\[\d+\]\.files\[\d+\]\.url = '([^']+)';`)

// Download is the direct file location of a catalog entry.
type Download struct {
	URL string `json:"url"`
}

type downloadRequest struct {
	UIDInfo  string `json:"uidInfo"`
	UpdateID string `json:"updateID"`
}

// Resolve asks the catalog's download dialog for the file URL of entryID.
func (c *Client) Resolve(ctx context.Context, entryID string) (Download, error) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return Download{}, errors.New("resolve: empty entry id")
	}
	d, err := cached(ctx, c, &c.downloads, "resolve:"+entryID, func(ctx context.Context) (Download, error) {
		return c.resolve(ctx, entryID)
	})
	if err != nil {
		return Download{}, fmt.Errorf("resolve %s: %w", entryID, err)
	}
	return d, nil
}

func (c *Client) resolve(ctx context.Context, entryID string) (Download, error) {
	payload, err := json.Marshal([]downloadRequest{{UIDInfo: entryID, UpdateID: entryID}})
	if err != nil {
		return Download{}, err
	}
	form := url.Values{"updateIDs": {string(payload)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/DownloadDialog.aspx", strings.NewReader(form.Encode()))
	if err != nil {
		return Download{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return Download{}, err
	}
	return ParseDownloadDialog(body)
}

// ParseDownloadDialog extracts the single file URL from a DownloadDialog.aspx page.
// An empty dialog matches both ErrDownloadNotFound and ErrAmbiguousDownloadInfo.
func ParseDownloadDialog(body []byte) (Download, error) {
	matches := fileURLAssignment.FindAllSubmatch(body, -1)
	switch len(matches) {
	case 0:
		return Download{}, fmt.Errorf("%w: %w: found 0", ErrDownloadNotFound, ErrAmbiguousDownloadInfo)
	case 1:
	default:
		return Download{}, fmt.Errorf("%w: found %d", ErrAmbiguousDownloadInfo, len(matches))
	}

	raw := strings.TrimSpace(string(matches[0][1]))
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Download{}, fmt.Errorf("%w: unusable file url %q", ErrDownloadNotFound, raw)
	}
	return Download{URL: raw}, nil
}
