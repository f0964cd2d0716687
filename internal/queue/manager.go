package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrEmptyQuery = errors.New("query is required")

// Manager mirrors the server-held task queue. The cached list is refreshed
// on demand and is never the source of truth.
type Manager struct {
	svc Service

	mu    sync.RWMutex
	tasks []AnalysisTask
}

func NewManager(svc Service) *Manager {
	return &Manager{svc: svc}
}

// AddTask submits a query to the server queue and folds the returned task
// into the cache. Callers that need the full picture should Refresh after.
func (m *Manager) AddTask(ctx context.Context, query string) (AnalysisTask, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return AnalysisTask{}, ErrEmptyQuery
	}
	task, err := m.svc.AddTask(ctx, query)
	if err != nil {
		return AnalysisTask{}, fmt.Errorf("add task: %w", err)
	}
	m.mu.Lock()
	m.tasks = append(m.tasks, task.Clone())
	m.mu.Unlock()
	return task, nil
}

// RemoveTask deletes a task server-side and drops it from the cache.
func (m *Manager) RemoveTask(ctx context.Context, taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return errors.New("task id is required")
	}
	if err := m.svc.RemoveTask(ctx, taskID); err != nil {
		return fmt.Errorf("remove task: %w", err)
	}
	m.mu.Lock()
	out := m.tasks[:0]
	for _, t := range m.tasks {
		if t.ID != taskID {
			out = append(out, t)
		}
	}
	m.tasks = append([]AnalysisTask(nil), out...)
	m.mu.Unlock()
	return nil
}

// Refresh re-pulls the authoritative list. It is read-only and idempotent,
// safe to call redundantly on every job status tick.
func (m *Manager) Refresh(ctx context.Context) error {
	tasks, err := m.svc.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	cloned := make([]AnalysisTask, 0, len(tasks))
	for _, t := range tasks {
		cloned = append(cloned, t.Clone())
	}
	m.mu.Lock()
	m.tasks = cloned
	m.mu.Unlock()
	return nil
}

// Tasks returns a snapshot of the cached list.
func (m *Manager) Tasks() []AnalysisTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AnalysisTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Len reports the cached task count.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

// PendingCount reports how many cached tasks still await planning.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tasks {
		if t.State == TaskStatePending {
			n++
		}
	}
	return n
}

// GeneratePlansBatch submits one batch planning job covering all pending
// tasks and returns its job id.
func (m *Manager) GeneratePlansBatch(ctx context.Context) (string, error) {
	jobID, err := m.svc.GeneratePlansBatch(ctx)
	if err != nil {
		return "", fmt.Errorf("generate plans batch: %w", err)
	}
	return jobID, nil
}

// ExecuteQueue submits one batch execution job and returns its job id.
func (m *Manager) ExecuteQueue(ctx context.Context, notificationEmail string, termsAccepted bool) (string, error) {
	jobID, err := m.svc.ExecuteQueue(ctx, notificationEmail, termsAccepted)
	if err != nil {
		return "", fmt.Errorf("execute queue: %w", err)
	}
	return jobID, nil
}

// Clear drops the cached list without touching the server.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.tasks = nil
	m.mu.Unlock()
}
