// Package httplog provides an http.RoundTripper that writes one line per request
// and response when verbose logging is enabled.
package httplog

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport wraps Base and logs every round trip to W, prefixed with Label.
// A nil W disables logging.
type Transport struct {
	Base  http.RoundTripper
	W     io.Writer
	Label string
}

// Wrap returns base unchanged when w is nil, otherwise a logging Transport.
func Wrap(base http.RoundTripper, w io.Writer, label string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if w == nil {
		return base
	}
	return &Transport{Base: base, W: w, Label: label}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	if t.W != nil {
		_, _ = fmt.Fprintf(t.W, "[verbose] %s: %s %s\n", t.Label, req.Method, req.URL.Redacted())
	}
	resp, err := base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if t.W != nil {
		if err != nil {
			_, _ = fmt.Fprintf(t.W, "[verbose] %s: error after %s: %v\n", t.Label, dur, err)
		} else {
			_, _ = fmt.Fprintf(t.W, "[verbose] %s: %d %s (%s)\n", t.Label, resp.StatusCode, http.StatusText(resp.StatusCode), dur)
		}
	}
	return resp, err
}
