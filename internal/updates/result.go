package updates

// Status is the outcome of processing one update.
type Status string

const (
	StatusOK      Status = "OK"
	StatusError   Status = "ERROR"
	StatusSkipped Status = "SKIPPED"
)

// Result records what happened to one update of the input list.
type Result struct {
	Version    string   `json:"version"`
	KB         string   `json:"kb,omitempty"`
	Status     Status   `json:"status"`
	Stage      string   `json:"stage,omitempty"`
	Message    string   `json:"message,omitempty"`
	URL        string   `json:"url,omitempty"`
	Bytes      int64    `json:"bytes,omitempty"`
	Dir        string   `json:"dir,omitempty"`
	Manifests  []string `json:"manifests,omitempty"`
	DurationMS int64    `json:"durationMs"`
}

func (r Result) Failed() bool { return r.Status == StatusError }
