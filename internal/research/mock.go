package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mlauria/lexflow/internal/jobs"
	"github.com/mlauria/lexflow/internal/plan"
	"github.com/mlauria/lexflow/internal/queue"
)

// MockClient simulates the research services for local development and
// tests. Jobs complete deterministically: queries containing "fail" produce
// failing jobs, everything else succeeds with a synthetic plan or result.
type MockClient struct {
	// TickDelay spaces out streamed status ticks. Zero means no delay.
	TickDelay time.Duration

	mu     sync.Mutex
	nextID int
	plans  map[string]*plan.Data
	ticks  map[string][]jobs.StatusUpdate
	final  map[string]JobStatus
	tasks  []queue.AnalysisTask
}

func NewMockClient() *MockClient {
	return &MockClient{
		plans: make(map[string]*plan.Data),
		ticks: make(map[string][]jobs.StatusUpdate),
		final: make(map[string]JobStatus),
	}
}

func (c *MockClient) CreatePlan(_ context.Context, query string) (CreatePlanResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return CreatePlanResponse{}, fmt.Errorf("plan submission rejected: query is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	jobID := c.newIDLocked("job")

	if strings.Contains(strings.ToLower(query), "fail") {
		c.scriptFailureLocked(jobID, "no cases matched the query")
		return CreatePlanResponse{Success: true, JobID: jobID}, nil
	}

	planID := c.newIDLocked("plan")
	data := syntheticPlan(planID, query)
	c.plans[planID] = &data
	payload, _ := json.Marshal(PlanJobResult{Success: true, Plan: &data})
	c.scriptSuccessLocked(jobID, payload)
	return CreatePlanResponse{Success: true, JobID: jobID}, nil
}

func (c *MockClient) UpdatePlan(_ context.Context, planID string, caseCount int) (plan.Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.plans[planID]
	if !ok {
		return plan.Update{}, fmt.Errorf("plan update rejected: unknown plan %q", planID)
	}
	data.TotalCases = caseCount
	data.TotalChunks = (caseCount + 9) / 10
	data.EstimatedTimeSeconds = caseCount * 3
	return plan.Update{
		TotalCases:           data.TotalCases,
		TotalChunks:          data.TotalChunks,
		EstimatedTimeSeconds: data.EstimatedTimeSeconds,
		OriginalTotalCases:   data.OriginalTotalCases,
	}, nil
}

func (c *MockClient) ExecutePlan(_ context.Context, planID string, _ *NotificationPrefs) (ExecuteResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.plans[planID]
	if !ok {
		return ExecuteResponse{}, fmt.Errorf("execution rejected: unknown plan %q", planID)
	}
	jobID := c.newIDLocked("job")
	payload, _ := json.Marshal(map[string]any{
		"success":        true,
		"cases_analyzed": data.TotalCases,
		"summary":        "Synthetic analysis of " + fmt.Sprint(data.TotalCases) + " cases.",
	})
	c.scriptSuccessLocked(jobID, payload)
	return ExecuteResponse{Success: true, JobID: jobID}, nil
}

func (c *MockClient) GetJobStatus(_ context.Context, jobID string) (JobStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.final[jobID]
	if !ok {
		return JobStatus{}, fmt.Errorf("unknown job %q", jobID)
	}
	return status, nil
}

func (c *MockClient) StreamJobStatus(ctx context.Context, jobID string, onTick func(jobs.StatusUpdate)) error {
	c.mu.Lock()
	script := append([]jobs.StatusUpdate(nil), c.ticks[jobID]...)
	delay := c.TickDelay
	c.mu.Unlock()
	if script == nil {
		return fmt.Errorf("unknown job %q", jobID)
	}

	for _, tick := range script {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		onTick(tick)
	}
	return nil
}

func (c *MockClient) AddTask(_ context.Context, query string) (queue.AnalysisTask, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return queue.AnalysisTask{}, fmt.Errorf("add task rejected: query is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	task := queue.AnalysisTask{
		ID:        c.newIDLocked("task"),
		Query:     query,
		State:     queue.TaskStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.tasks = append(c.tasks, task)
	return task.Clone(), nil
}

func (c *MockClient) RemoveTask(_ context.Context, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.tasks[:0]
	found := false
	for _, t := range c.tasks {
		if t.ID == taskID {
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		return fmt.Errorf("unknown task %q", taskID)
	}
	c.tasks = out
	return nil
}

func (c *MockClient) ListTasks(_ context.Context) ([]queue.AnalysisTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]queue.AnalysisTask, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (c *MockClient) GeneratePlansBatch(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := 0
	for _, t := range c.tasks {
		if t.State == queue.TaskStatePending {
			pending++
		}
	}
	if pending == 0 {
		return "", fmt.Errorf("batch planning rejected: no pending tasks")
	}

	now := time.Now().UTC()
	for i := range c.tasks {
		if c.tasks[i].State != queue.TaskStatePending {
			continue
		}
		c.tasks[i].UpdatedAt = now
		if strings.Contains(strings.ToLower(c.tasks[i].Query), "fail") {
			c.tasks[i].State = queue.TaskStateFailed
			c.tasks[i].Error = "no cases matched the query"
			continue
		}
		planID := c.newIDLocked("plan")
		data := syntheticPlan(planID, c.tasks[i].Query)
		c.plans[planID] = &data
		taskPlan := data.Clone()
		c.tasks[i].State = queue.TaskStatePlanned
		c.tasks[i].Plan = &taskPlan
	}

	jobID := c.newIDLocked("job")
	payload, _ := json.Marshal(map[string]any{"success": true, "planned": pending})
	c.scriptBatchLocked(jobID, pending, payload)
	return jobID, nil
}

func (c *MockClient) ExecuteQueue(_ context.Context, _ string, termsAccepted bool) (string, error) {
	if !termsAccepted {
		return "", fmt.Errorf("queue execution rejected: terms must be accepted")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	ran := 0
	for i := range c.tasks {
		if c.tasks[i].State != queue.TaskStatePlanned {
			continue
		}
		ran++
		done := now
		c.tasks[i].State = queue.TaskStateCompleted
		c.tasks[i].UpdatedAt = now
		c.tasks[i].CompletedAt = &done
		c.tasks[i].Result = json.RawMessage(`{"success":true}`)
	}
	if ran == 0 {
		return "", fmt.Errorf("queue execution rejected: no planned tasks")
	}

	jobID := c.newIDLocked("job")
	payload, _ := json.Marshal(map[string]any{"success": true, "executed": ran})
	c.scriptBatchLocked(jobID, ran, payload)
	return jobID, nil
}

func (c *MockClient) newIDLocked(kind string) string {
	c.nextID++
	return fmt.Sprintf("%s-%d", kind, c.nextID)
}

func (c *MockClient) scriptSuccessLocked(jobID string, result json.RawMessage) {
	c.ticks[jobID] = []jobs.StatusUpdate{
		{JobID: jobID, Status: jobs.StatusQueued, Position: 1, Total: 1},
		{JobID: jobID, Status: jobs.StatusProcessing},
		{JobID: jobID, Status: jobs.StatusCompleted, Result: result},
	}
	c.final[jobID] = JobStatus{JobID: jobID, Status: jobs.StatusCompleted, Result: result}
}

func (c *MockClient) scriptFailureLocked(jobID, msg string) {
	c.ticks[jobID] = []jobs.StatusUpdate{
		{JobID: jobID, Status: jobs.StatusQueued, Position: 1, Total: 1},
		{JobID: jobID, Status: jobs.StatusProcessing},
		{JobID: jobID, Status: jobs.StatusError, Error: msg},
	}
	c.final[jobID] = JobStatus{JobID: jobID, Status: jobs.StatusError, Error: msg}
}

func (c *MockClient) scriptBatchLocked(jobID string, total int, result json.RawMessage) {
	script := []jobs.StatusUpdate{
		{JobID: jobID, Status: jobs.StatusQueued, Position: total, Total: total},
	}
	for i := 0; i < total; i++ {
		script = append(script, jobs.StatusUpdate{
			JobID:    jobID,
			Status:   jobs.StatusProcessing,
			Position: total - i,
			Total:    total,
		})
	}
	script = append(script, jobs.StatusUpdate{JobID: jobID, Status: jobs.StatusCompleted, Result: result})
	c.ticks[jobID] = script
	c.final[jobID] = JobStatus{JobID: jobID, Status: jobs.StatusCompleted, Result: result}
}

func syntheticPlan(planID, query string) plan.Data {
	// Stable but query-dependent sizing keeps demo runs interesting.
	total := 10 + len(query)%41
	return plan.Data{
		PlanID:               planID,
		TotalCases:           total,
		TotalChunks:          (total + 9) / 10,
		EstimatedTimeSeconds: total * 3,
		OriginalTotalCases:   total,
		StrategySummary:      "Citation-first retrieval with keyword fallback.",
		StrategiesUsed:       []string{"citation", "keyword"},
		StrategyBreakdown:    map[string]int{"citation": total / 2, "keyword": total - total/2},
		PreviewRows: []plan.PreviewRow{
			{CaseID: "preview-1", Caption: "Sample v. Matter", Strategy: "citation"},
			{CaseID: "preview-2", Caption: "Example v. Holding", Strategy: "keyword"},
		},
	}
}
