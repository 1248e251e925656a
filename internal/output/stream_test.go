package output

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"winmanifests/internal/updates"
)

func TestEmitSink_NDJSON_FlushesPerWrite(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	defer pw.Close()

	bw := bufio.NewWriterSize(pw, 64*1024)
	s, err := NewEmitSink(bw, "ndjson")
	if err != nil {
		t.Fatalf("NewEmitSink returned error: %v", err)
	}

	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		r := bufio.NewReader(pr)
		line, err := r.ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		lineCh <- line
	}()

	if err := s.Write(Event{Type: EventVersionStarted, Version: "2004"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	select {
	case line := <-lineCh:
		if !strings.Contains(line, `"type":"version.started"`) || !strings.Contains(line, `"version":"2004"`) {
			t.Fatalf("expected version.started event, got %q", line)
		}
	case err := <-errCh:
		t.Fatalf("read error: %v", err)
	case <-time.After(250 * time.Millisecond):
		t.Fatalf("timed out waiting for ndjson line; writer likely not flushing")
	}
}

func TestEmitSink_RejectsBadInput(t *testing.T) {
	if _, err := NewEmitSink(nil, "ndjson"); err == nil {
		t.Fatalf("expected error for nil writer")
	}
	if _, err := NewEmitSink(io.Discard, "yaml"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestFileSink_NDJSON_ResultBecomesUpdateFinished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.ndjson")

	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink returned error: %v", err)
	}

	if err := s.Write(Event{Type: EventRunStarted, RunID: "abc"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	b1, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.HasSuffix(string(b1), "\n") || !strings.Contains(string(b1), `"run_id":"abc"`) {
		t.Fatalf("expected run.started line after first Write, got %q", string(b1))
	}

	res := updates.Result{Version: "2004", KB: "KB1", Status: updates.StatusError, Stage: "resolve", Message: "boom"}
	if err := s.Write(res); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	b2, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b2)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d: %q", len(lines), string(b2))
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if e.Type != EventUpdateFinished || e.KB != "KB1" || e.Result == nil || e.Result.Stage != "resolve" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestFileSink_JSON_AggregatesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	s, err := NewFileSink(path, "json")
	if err != nil {
		t.Fatalf("NewFileSink returned error: %v", err)
	}
	_ = s.Write(Event{Type: EventRunStarted})
	_ = s.Write(updates.Result{Version: "2004", KB: "KB1", Status: updates.StatusOK, Manifests: []string{"a.manifest"}})
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var got []updates.Result
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 1 || got[0].Manifests[0] != "a.manifest" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestNewFileSink_Format(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		format  string
		wantErr bool
	}{
		{name: "json ext", file: "a.json"},
		{name: "ndjson ext", file: "a.ndjson"},
		{name: "jsonl ext", file: "a.jsonl"},
		{name: "explicit", file: "a.txt", format: "ndjson"},
		{name: "unknown ext", file: "a.txt", wantErr: true},
		{name: "bad format", file: "a.json", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFileSink(filepath.Join(dir, tt.file), tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_ = s.Close()
		})
	}
}
