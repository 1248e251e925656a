package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"winmanifests/internal/updates"
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	results         []updates.Result // For JSON array output
	allowedStatuses map[updates.Status]bool
}

var statusColor = map[updates.Status]*color.Color{
	updates.StatusOK:      color.New(color.FgGreen),
	updates.StatusError:   color.New(color.FgRed, color.Bold),
	updates.StatusSkipped: color.New(color.FgYellow),
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[updates.Status]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[updates.Status(strings.ToUpper(st))] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	if len(s.allowedStatuses) > 0 {
		if r, ok := v.(updates.Result); ok && !s.allowedStatuses[r.Status] {
			return nil
		}
	}

	switch s.format {
	case "json":
		r, ok := v.(updates.Result)
		if !ok {
			// Ignore non-result events in JSON console mode.
			return nil
		}
		s.results = append(s.results, r)
		return nil
	case "ndjson":
		var e Event
		switch t := v.(type) {
		case Event:
			e = t
		case updates.Result:
			e = eventFromResult(t)
		default:
			return nil
		}
		if err := json.NewEncoder(s.writer).Encode(e); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	case "text":
		line, ok := textLine(v)
		if !ok {
			return nil
		}
		if _, err := fmt.Fprintln(s.writer, line); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func textLine(v any) (string, bool) {
	switch t := v.(type) {
	case updates.Result:
		return resultLine(t), true
	case Event:
		switch t.Type {
		case EventVersionStarted:
			return fmt.Sprintf("Processing Windows version %s", t.Version), true
		case EventVersionSkipped:
			return fmt.Sprintf("Skipping Windows version %s (%d updates)", t.Version, t.Updates), true
		case EventUpdateDownloaded:
			return fmt.Sprintf("[%s] Downloaded %s from %s", t.KB, FormatBytes(t.Bytes), t.URL), true
		case EventRunFinished:
			line := fmt.Sprintf("Done: %d ok, %d failed, %d skipped", t.OK, t.Failed, t.Skipped)
			if t.Aborted {
				line += " (stopped after first failure)"
			}
			return line, true
		}
	}
	return "", false
}

func resultLine(r updates.Result) string {
	status := string(r.Status)
	if c, ok := statusColor[r.Status]; ok {
		status = c.Sprint(status)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s", r.KB, status, r.Version)
	switch r.Status {
	case updates.StatusOK:
		if r.Dir == "" {
			// Dry run: nothing was downloaded.
			fmt.Fprintf(&b, ": would download %s", r.URL)
			break
		}
		fmt.Fprintf(&b, ": %d manifest files in %s", len(r.Manifests), r.Dir)
	case updates.StatusError:
		if r.Stage != "" {
			fmt.Fprintf(&b, ": %s", r.Stage)
		}
		if r.Message != "" {
			fmt.Fprintf(&b, ": %s", r.Message)
		}
	default:
		if r.Message != "" {
			fmt.Fprintf(&b, ": %s", r.Message)
		}
	}
	return b.String()
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		results := s.results
		if results == nil {
			results = []updates.Result{}
		}
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(results); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	}
	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}

// FormatBytes renders n using binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
