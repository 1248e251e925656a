// Package catalog talks to the Microsoft Update Catalog: it searches the result
// listing and resolves a result's direct download URL.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"winmanifests/internal/httplog"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public update catalog.
const DefaultBaseURL = "https://www.catalog.update.microsoft.com"

// DefaultRate is the default number of catalog requests per second.
const DefaultRate = 2.0

const userAgent = "winmanifests (+https://www.catalog.update.microsoft.com)"

// maxBodyBytes caps how much of a catalog response is read.
const maxBodyBytes = 16 << 20

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	group     singleflight.Group
	searches  cache[[]Entry]
	downloads cache[Download]
}

type options struct {
	baseURL    string
	httpClient *http.Client
	verbose    io.Writer
	limit      rate.Limit
	burst      int
	timeout    time.Duration
}

type Option func(*options)

// WithBaseURL points the client at another catalog host (a mirror or a test server).
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithHTTPClient replaces the underlying HTTP client. Verbose logging is not
// applied to a caller-provided client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithVerbose logs every catalog request to w.
func WithVerbose(w io.Writer) Option {
	return func(o *options) {
		o.verbose = w
	}
}

// WithRate paces catalog requests. perSecond <= 0 disables pacing.
func WithRate(perSecond float64) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.limit = rate.Inf
			return
		}
		o.limit = rate.Limit(perSecond)
	}
}

// WithTimeout bounds each catalog request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func NewClient(opts ...Option) (*Client, error) {
	o := &options{
		baseURL: DefaultBaseURL,
		limit:   rate.Limit(DefaultRate),
		burst:   1,
		timeout: 2 * time.Minute,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	base := strings.TrimRight(strings.TrimSpace(o.baseURL), "/")
	if base == "" {
		return nil, errors.New("catalog client: base URL is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("catalog client: base URL must be http(s): %q", o.baseURL)
	}

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   o.timeout,
			Transport: httplog.Wrap(http.DefaultTransport, o.verbose, "catalog"),
		}
	}

	return &Client{
		baseURL: base,
		http:    hc,
		limiter: rate.NewLimiter(o.limit, o.burst),
	}, nil
}

// BaseURL returns the catalog root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: unexpected status %d %s", req.Method, req.URL.Path, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return body, nil
}

// cached runs fetch once per key: concurrent callers share one request and
// successful results are kept for the client's lifetime.
func cached[V any](ctx context.Context, c *Client, store *cache[V], key string, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := store.get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	out := v.(V)
	store.set(key, out)
	return out, nil
}
