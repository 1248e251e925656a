package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

var (
	// ErrUnexpectedPagination is returned when a search result listing spans more
	// than one page (or is not a result listing at all).
	ErrUnexpectedPagination = errors.New("search results do not fit on a single page")

	// ErrListingMismatch is returned when the result rows and the Download buttons
	// of a listing reference different entry ids.
	ErrListingMismatch = errors.New("search result rows and download buttons disagree")
)

// singlePageMarker is the pager text the catalog renders when every result is on
// the first page.
const singlePageMarker = "(page 1 of 1)"

var (
	detailsCall = regexp.MustCompile(`goToDetails\("([a-f0-9\-]+)"\)`)
	entryID     = regexp.MustCompile(`^[a-f0-9\-]+$`)
)

// Entry is one row of a catalog search result listing.
type Entry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Search runs a free-text catalog search. Results for identical terms are cached.
func (c *Client) Search(ctx context.Context, terms string) ([]Entry, error) {
	terms = strings.Join(strings.Fields(terms), " ")
	if terms == "" {
		return nil, errors.New("search: empty search terms")
	}
	entries, err := cached(ctx, c, &c.searches, "search:"+terms, func(ctx context.Context) ([]Entry, error) {
		return c.search(ctx, terms)
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", terms, err)
	}
	return slices.Clone(entries), nil
}

func (c *Client) search(ctx context.Context, terms string) ([]Entry, error) {
	u := c.baseURL + "/Search.aspx?" + url.Values{"q": {terms}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return ParseSearchResults(body)
}

// ParseSearchResults extracts the result rows of a Search.aspx page.
//
// Rows are read from the title anchors (onclick="goToDetails(id)") and checked
// against the ids of the Download buttons, which the catalog renders in a separate
// column of the same table.
func ParseSearchResults(body []byte) ([]Entry, error) {
	if !bytes.Contains(body, []byte(singlePageMarker)) {
		return nil, ErrUnexpectedPagination
	}

	var (
		entries  []Entry
		buttons  []string
		inAnchor bool
		current  Entry
		title    strings.Builder
	)

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return nil, fmt.Errorf("parse search results: %w", z.Err())
			}
			if err := compareListings(entries, buttons); err != nil {
				return nil, err
			}
			return entries, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "a":
				if id, ok := detailsTarget(tok); ok {
					inAnchor = true
					current = Entry{ID: id}
					title.Reset()
				}
			case "input":
				if id, ok := downloadButton(tok); ok {
					buttons = append(buttons, id)
				}
			}

		case html.TextToken:
			if inAnchor {
				title.Write(z.Text())
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if inAnchor && string(name) == "a" {
				current.Title = strings.Join(strings.Fields(title.String()), " ")
				entries = append(entries, current)
				inAnchor = false
			}
		}
	}
}

func compareListings(entries []Entry, buttons []string) error {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if slices.Equal(ids, buttons) {
		return nil
	}
	return fmt.Errorf("%w: %d result rows, %d download buttons", ErrListingMismatch, len(ids), len(buttons))
}

func detailsTarget(tok html.Token) (string, bool) {
	onclick, ok := attr(tok, "onclick")
	if !ok {
		return "", false
	}
	m := detailsCall.FindStringSubmatch(onclick)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func downloadButton(tok html.Token) (string, bool) {
	if v, _ := attr(tok, "value"); v != "Download" {
		return "", false
	}
	class, _ := attr(tok, "class")
	if !slices.Contains(strings.Fields(class), "flatLightBlueButton") {
		return "", false
	}
	id, _ := attr(tok, "id")
	if !entryID.MatchString(id) {
		return "", false
	}
	return id, true
}

func attr(tok html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
