package jobs

import "encoding/json"

// Status is the remote job lifecycle state reported by the research service.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// StatusUpdate is a single push or poll tick for a job.
type StatusUpdate struct {
	JobID    string          `json:"job_id"`
	Position int             `json:"position"`
	Total    int             `json:"total"`
	Status   Status          `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// CompletionKind tags how a job's terminal outcome was delivered.
type CompletionKind int

const (
	// CompletionInlineResult means the tick carried the result payload.
	CompletionInlineResult CompletionKind = iota
	// CompletionInlineError means the tick carried a terminal error.
	CompletionInlineError
	// CompletionConfirmFetch means the stream ended without an inline
	// payload; the consumer must pull job status once to confirm. This
	// covers the race where the stream closes before the result is
	// durably stored server-side.
	CompletionConfirmFetch
)

// Completion is the terminal outcome of a subscribed job.
type Completion struct {
	Kind   CompletionKind
	Result json.RawMessage
	Error  string
}

// CompletionOf resolves a tick into a terminal Completion. It is the single
// place that decides what counts as inline delivery; callers never branch on
// raw tick fields themselves.
func CompletionOf(u StatusUpdate) (Completion, bool) {
	if u.Status == StatusError || u.Error != "" {
		msg := u.Error
		if msg == "" {
			msg = "job failed"
		}
		return Completion{Kind: CompletionInlineError, Error: msg}, true
	}
	if u.Status == StatusCompleted && len(u.Result) > 0 {
		return Completion{Kind: CompletionInlineResult, Result: u.Result}, true
	}
	return Completion{}, false
}
