package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"winmanifests/internal/catalog"
	"winmanifests/internal/config"
)

// ErrAmbiguousSelection is returned when filtering a catalog search does not
// leave exactly one entry with the expected title.
var ErrAmbiguousSelection = errors.New("catalog search did not yield exactly one matching update")

// Query identifies one update of one Windows version.
type Query struct {
	Version string
	KB      string
}

func (q Query) String() string {
	return q.Version + "/" + q.KB
}

// Searcher is the catalog search used for selection.
type Searcher interface {
	Search(ctx context.Context, terms string) ([]catalog.Entry, error)
}

// Selector picks the single catalog entry of a Query.
type Selector struct {
	rules config.Rules
}

func NewSelector(r config.Rules) *Selector {
	d := config.DefaultRules()
	if strings.TrimSpace(r.Product) == "" {
		r.Product = d.Product
	}
	if strings.TrimSpace(r.Architecture) == "" {
		r.Architecture = d.Architecture
	}
	return &Selector{rules: r}
}

// SearchTerms returns the catalog search phrase for kb.
func (s *Selector) SearchTerms(kb string) string {
	return kb + " " + s.rules.Architecture
}

// exclusion matches titles that must not be selected for version: the
// configured exclusion terms and every skipped version listed under version.
func (s *Selector) exclusion(version string) *regexp.Regexp {
	terms := append([]string{}, s.rules.ExcludeTerms...)
	terms = append(terms, s.rules.ContainedVersions(version)...)
	if len(terms) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// titlePattern is the exact title the surviving entry must carry, e.g.
// "2021-05 Cumulative Update for Windows 10 Version 20H2 for x64-based Systems (KB5003173)".
func (s *Selector) titlePattern(q Query) *regexp.Regexp {
	return regexp.MustCompile(`^\d{4}-\d{2} Cumulative Update for ` +
		regexp.QuoteMeta(s.rules.Product) + ` Version ` + regexp.QuoteMeta(q.Version) +
		` for ` + regexp.QuoteMeta(s.rules.Architecture) + `-based Systems \(` +
		regexp.QuoteMeta(q.KB) + `\)$`)
}

// Filter drops excluded entries, returning the survivors in listing order.
func (s *Selector) Filter(q Query, entries []catalog.Entry) []catalog.Entry {
	re := s.exclusion(q.Version)
	if re == nil {
		return entries
	}
	var out []catalog.Entry
	for _, e := range entries {
		if re.MatchString(e.Title) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Select searches the catalog for q and returns its only matching entry.
func (s *Selector) Select(ctx context.Context, searcher Searcher, q Query) (catalog.Entry, error) {
	if searcher == nil {
		return catalog.Entry{}, errors.New("select: searcher is nil")
	}
	entries, err := searcher.Search(ctx, s.SearchTerms(q.KB))
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("search %s: %w", q.KB, err)
	}

	survivors := s.Filter(q, entries)
	if len(survivors) != 1 {
		return catalog.Entry{}, fmt.Errorf("%w: %d of %d entries remain for %s", ErrAmbiguousSelection, len(survivors), len(entries), q)
	}
	e := survivors[0]
	if !s.titlePattern(q).MatchString(e.Title) {
		return catalog.Entry{}, fmt.Errorf("%w: unexpected title %q for %s", ErrAmbiguousSelection, e.Title, q)
	}
	return e, nil
}
