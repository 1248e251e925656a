package output

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"winmanifests/internal/updates"
)

// ReportSink writes a Markdown summary of the run on Close.
type ReportSink struct {
	path    string
	file    *os.File
	mu      sync.Mutex
	runID   string
	results []updates.Result
	skipped []Event // version.skipped
	order   []string
	seen    map[string]bool
	final   *Event
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{
		path: path,
		file: f,
		seen: make(map[string]bool),
	}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case updates.Result:
		s.results = append(s.results, t)
		s.addVersion(t.Version)
	case Event:
		switch t.Type {
		case EventRunStarted:
			s.runID = t.RunID
		case EventVersionStarted:
			s.addVersion(t.Version)
		case EventVersionSkipped:
			s.skipped = append(s.skipped, t)
		case EventRunFinished:
			e := t
			s.final = &e
		}
	}
	return nil
}

func (s *ReportSink) addVersion(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.order = append(s.order, v)
}

type versionStats struct {
	OK, Failed, Skipped int
	Bytes               int64
	Manifests           int
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	perVersion := make(map[string]*versionStats, len(s.order))
	for _, v := range s.order {
		perVersion[v] = &versionStats{}
	}
	var (
		total    versionStats
		failures []updates.Result
	)
	for _, r := range s.results {
		vs, ok := perVersion[r.Version]
		if !ok {
			vs = &versionStats{}
			perVersion[r.Version] = vs
		}
		switch r.Status {
		case updates.StatusOK:
			vs.OK++
			total.OK++
		case updates.StatusError:
			vs.Failed++
			total.Failed++
			failures = append(failures, r)
		case updates.StatusSkipped:
			vs.Skipped++
			total.Skipped++
		}
		vs.Bytes += r.Bytes
		vs.Manifests += len(r.Manifests)
		total.Bytes += r.Bytes
		total.Manifests += len(r.Manifests)
	}

	var b strings.Builder
	b.WriteString("# Windows Update Manifests Report\n\n")
	if s.runID != "" {
		fmt.Fprintf(&b, "Run `%s`.\n\n", s.runID)
	}

	b.WriteString("## Summary\n\n")
	b.WriteString("| Updates OK | Failed | Skipped | Downloaded | Manifests | Exit code |\n")
	b.WriteString("| ---: | ---: | ---: | ---: | ---: | ---: |\n")
	exit := "n/a"
	if s.final != nil {
		exit = fmt.Sprintf("%d", s.final.ExitCode)
	}
	fmt.Fprintf(&b, "| %d | %d | %d | %s | %d | %s |\n\n", total.OK, total.Failed, total.Skipped, FormatBytes(total.Bytes), total.Manifests, exit)
	if s.final != nil && s.final.Aborted {
		b.WriteString("The run stopped after the first failure (`--fail-fast`); later updates were not attempted.\n\n")
	}

	b.WriteString("## Per-version status\n\n")
	if len(s.order) == 0 {
		b.WriteString("No versions processed.\n\n")
	} else {
		b.WriteString("| Version | OK | Failed | Skipped | Downloaded | Manifests |\n")
		b.WriteString("| --- | ---: | ---: | ---: | ---: | ---: |\n")
		for _, v := range s.order {
			vs := perVersion[v]
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %s | %d |\n", v, vs.OK, vs.Failed, vs.Skipped, FormatBytes(vs.Bytes), vs.Manifests)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Failures\n\n")
	if len(failures) == 0 {
		b.WriteString("- None\n\n")
	} else {
		for _, g := range groupFailures(failures) {
			fmt.Fprintf(&b, "- **%s**: %s\n", g.reason, strings.Join(g.updates, ", "))
		}
		b.WriteString("\n### Details\n\n")
		for _, r := range failures {
			fmt.Fprintf(&b, "- %s %s (%s): %s\n", r.Version, r.KB, r.Stage, r.Message)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Skipped versions\n\n")
	if len(s.skipped) == 0 {
		b.WriteString("- None\n")
	} else {
		for _, e := range s.skipped {
			fmt.Fprintf(&b, "- %s (%d updates)\n", e.Version, e.Updates)
		}
	}

	if _, err := s.file.WriteString(b.String()); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

type failureGroup struct {
	reason  string
	updates []string
}

// groupFailures buckets failures by stage and normalized reason, largest first.
func groupFailures(failures []updates.Result) []failureGroup {
	byReason := map[string]*failureGroup{}
	for _, r := range failures {
		reason := r.Stage + ": " + normalizeFailureReason(r.Message)
		g, ok := byReason[reason]
		if !ok {
			g = &failureGroup{reason: reason}
			byReason[reason] = g
		}
		g.updates = append(g.updates, r.Version+"/"+r.KB)
	}

	out := make([]failureGroup, 0, len(byReason))
	for _, g := range byReason {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].updates) != len(out[j].updates) {
			return len(out[i].updates) > len(out[j].updates)
		}
		return out[i].reason < out[j].reason
	})
	return out
}

var (
	urlPattern  = regexp.MustCompile(`https?://\S+`)
	uuidPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	kbPattern   = regexp.MustCompile(`\bKB\d+\b`)
)

// normalizeFailureReason strips per-update details (URLs, entry ids, KB numbers)
// so identical causes group together.
func normalizeFailureReason(msg string) string {
	s := strings.Join(strings.Fields(msg), " ")
	s = urlPattern.ReplaceAllString(s, "<url>")
	s = uuidPattern.ReplaceAllString(s, "<id>")
	s = kbPattern.ReplaceAllString(s, "<kb>")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}
