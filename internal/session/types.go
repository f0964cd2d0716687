package session

import (
	"encoding/json"
	"time"

	"github.com/mlauria/lexflow/internal/plan"
)

// SchemaVersion is bumped whenever the persisted shape changes. Records
// written under any other version are discarded on restore; no partial
// migration is attempted.
const SchemaVersion = 3

// WorkflowSession is the persisted snapshot of one workflow, enough to
// resume after a reload.
type WorkflowSession struct {
	Version     int             `json:"version"`
	Query       string          `json:"query,omitempty"`
	CurrentStep string          `json:"current_step"`
	PlanData    *plan.Data      `json:"plan_data,omitempty"`
	JobID       string          `json:"job_id,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	IsQueueMode bool            `json:"is_queue_mode,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Empty reports whether the snapshot carries nothing worth keeping. An
// all-empty session is never written, so stale empty state cannot be
// resurrected. Queue mode counts as content because the queue itself lives
// server-side.
func (s WorkflowSession) Empty() bool {
	return s.Query == "" &&
		s.JobID == "" &&
		s.PlanData == nil &&
		len(s.Result) == 0 &&
		!s.IsQueueMode
}
