// Package github reads input documents from GitHub repositories.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"

	"winmanifests/internal/httplog"
)

type Client struct {
	Client *github.Client
	HTTP   *http.Client
}

type options struct {
	// verbose receives one line per API request and response (typically stderr)
	// so structured output on stdout stays clean.
	verbose io.Writer
	baseURL string
}

type Option func(*options)

func WithVerbose(w io.Writer) Option {
	return func(o *options) {
		o.verbose = w
	}
}

// WithBaseURL points the client at a GitHub Enterprise Server or a test server.
func WithBaseURL(raw string) Option {
	return func(o *options) {
		o.baseURL = raw
	}
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	transport := httplog.Wrap(http.DefaultTransport, o.verbose, "github api")
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	// Always provide an http.Client so verbose logging works even without a token.
	tc := &http.Client{Transport: transport}

	gh := github.NewClient(tc)
	if o.baseURL != "" {
		raw := o.baseURL
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("github client: invalid base url %q", o.baseURL)
		}
		gh.BaseURL = u
		gh.UploadURL = u
	}

	return &Client{
		Client: gh,
		HTTP:   tc,
	}, nil
}
