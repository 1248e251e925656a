package output

import "winmanifests/internal/updates"

// Lifecycle event types, in the order a run emits them.
const (
	EventRunStarted       = "run.started"
	EventVersionStarted   = "version.started"
	EventVersionSkipped   = "version.skipped"
	EventUpdateStarted    = "update.started"
	EventUpdateDownloaded = "update.downloaded"
	EventUpdateFinished   = "update.finished"
	EventRunFinished      = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// Sinks receive Events and updates.Result values. In NDJSON mode a Result is
// emitted as an update.finished Event. JSON mode remains an aggregate of
// updates.Result values.
type Event struct {
	Type    string          `json:"type"`
	RunID   string          `json:"run_id,omitempty"`
	Version string          `json:"version,omitempty"`
	KB      string          `json:"kb,omitempty"`
	Result  *updates.Result `json:"result,omitempty"`

	// update.downloaded
	URL   string `json:"url,omitempty"`
	Bytes int64  `json:"bytes,omitempty"`

	// run.started and version.skipped
	Versions int `json:"versions,omitempty"`
	Updates  int `json:"updates,omitempty"`

	// run.finished
	OK       int  `json:"ok,omitempty"`
	Failed   int  `json:"failed,omitempty"`
	Skipped  int  `json:"skipped,omitempty"`
	Aborted  bool `json:"aborted,omitempty"`
	ExitCode int  `json:"exit_code,omitempty"`
}

func eventFromResult(r updates.Result) Event {
	return Event{Type: EventUpdateFinished, Version: r.Version, KB: r.KB, Result: &r}
}
