package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mlauria/lexflow/internal/plan"
)

// TaskState is the server-reported lifecycle state of a queued analysis.
// Transitions are monotonic along pending → planning → planned → executing →
// completed|failed; a task never re-enters an earlier state except via
// removal and recreation.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStatePlanning  TaskState = "planning"
	TaskStatePlanned   TaskState = "planned"
	TaskStateExecuting TaskState = "executing"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

// AnalysisTask is one query inside queue mode.
type AnalysisTask struct {
	ID          string          `json:"id"`
	Query       string          `json:"query"`
	State       TaskState       `json:"state"`
	Plan        *plan.Data      `json:"plan,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (t AnalysisTask) Clone() AnalysisTask {
	out := t
	if t.Plan != nil {
		p := t.Plan.Clone()
		out.Plan = &p
	}
	if t.Result != nil {
		out.Result = append(json.RawMessage(nil), t.Result...)
	}
	return out
}

func (t AnalysisTask) Terminal() bool {
	switch t.State {
	case TaskStateCompleted, TaskStateFailed:
		return true
	default:
		return false
	}
}

// Service is the remote queue endpoint. The server-held list is
// authoritative; the manager never resolves conflicts locally.
type Service interface {
	AddTask(ctx context.Context, query string) (AnalysisTask, error)
	RemoveTask(ctx context.Context, taskID string) error
	ListTasks(ctx context.Context) ([]AnalysisTask, error)
	GeneratePlansBatch(ctx context.Context) (string, error)
	ExecuteQueue(ctx context.Context, notificationEmail string, termsAccepted bool) (string, error)
}
