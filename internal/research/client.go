package research

import (
	"context"
	"encoding/json"

	"github.com/mlauria/lexflow/internal/jobs"
	"github.com/mlauria/lexflow/internal/plan"
	"github.com/mlauria/lexflow/internal/queue"
)

// CreatePlanResponse acknowledges a planning job submission.
type CreatePlanResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Error   string `json:"error,omitempty"`
}

// ExecuteResponse acknowledges an execution job submission.
type ExecuteResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NotificationPrefs control how the user is told about long-running
// execution results.
type NotificationPrefs struct {
	Email         string `json:"email,omitempty"`
	NotifyOnDone  bool   `json:"notify_on_done,omitempty"`
	TermsAccepted bool   `json:"terms_accepted,omitempty"`
}

// JobStatus is the pull endpoint's view of a job.
type JobStatus struct {
	JobID  string          `json:"job_id"`
	Status jobs.Status     `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Client bridges the orchestrator with the remote research services:
// planning, execution, the job status channel, and the task queue. All
// implementations must be safe for concurrent use.
type Client interface {
	CreatePlan(ctx context.Context, query string) (CreatePlanResponse, error)
	ExecutePlan(ctx context.Context, planID string, prefs *NotificationPrefs) (ExecuteResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (JobStatus, error)

	jobs.Streamer
	plan.Updater
	queue.Service
}
