package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mlauria/lexflow/internal/plan"
	"github.com/mlauria/lexflow/internal/queue"
)

// HTTPClient talks to a research service over its JSON HTTP API; the job
// status stream rides a separate websocket endpoint (see stream.go).
type HTTPClient struct {
	baseURL string
	wsURL   string
	client  *http.Client
}

type HTTPConfig struct {
	BaseURL        string
	WSURL          string
	RequestTimeout time.Duration
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		wsURL:   strings.TrimRight(strings.TrimSpace(cfg.WSURL), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) CreatePlan(ctx context.Context, query string) (CreatePlanResponse, error) {
	var out CreatePlanResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/plans", map[string]string{"query": query}, &out)
	if err != nil {
		return CreatePlanResponse{}, err
	}
	if !out.Success {
		return CreatePlanResponse{}, fmt.Errorf("plan submission rejected: %s", fallbackMessage(out.Error))
	}
	return out, nil
}

func (c *HTTPClient) UpdatePlan(ctx context.Context, planID string, caseCount int) (plan.Update, error) {
	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
		plan.Update
	}
	path := "/v1/plans/" + url.PathEscape(planID)
	if err := c.doJSON(ctx, http.MethodPatch, path, map[string]int{"case_count": caseCount}, &out); err != nil {
		return plan.Update{}, err
	}
	if !out.Success {
		return plan.Update{}, fmt.Errorf("plan update rejected: %s", fallbackMessage(out.Error))
	}
	return out.Update, nil
}

func (c *HTTPClient) ExecutePlan(ctx context.Context, planID string, prefs *NotificationPrefs) (ExecuteResponse, error) {
	body := map[string]any{}
	if prefs != nil {
		body["notification_prefs"] = prefs
	}
	var out ExecuteResponse
	path := "/v1/plans/" + url.PathEscape(planID) + "/execute"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return ExecuteResponse{}, err
	}
	if !out.Success {
		return ExecuteResponse{}, fmt.Errorf("execution rejected: %s", fallbackMessage(out.Error))
	}
	return out, nil
}

func (c *HTTPClient) GetJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	var out JobStatus
	path := "/v1/jobs/" + url.PathEscape(jobID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return JobStatus{}, err
	}
	if out.JobID == "" {
		out.JobID = jobID
	}
	return out, nil
}

func (c *HTTPClient) AddTask(ctx context.Context, query string) (queue.AnalysisTask, error) {
	var out struct {
		Success bool               `json:"success"`
		Error   string             `json:"error,omitempty"`
		Task    queue.AnalysisTask `json:"task"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/queue/tasks", map[string]string{"query": query}, &out); err != nil {
		return queue.AnalysisTask{}, err
	}
	if !out.Success {
		return queue.AnalysisTask{}, fmt.Errorf("add task rejected: %s", fallbackMessage(out.Error))
	}
	return out.Task, nil
}

func (c *HTTPClient) RemoveTask(ctx context.Context, taskID string) error {
	path := "/v1/queue/tasks/" + url.PathEscape(taskID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) ListTasks(ctx context.Context) ([]queue.AnalysisTask, error) {
	var out struct {
		Tasks []queue.AnalysisTask `json:"tasks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/queue/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *HTTPClient) GeneratePlansBatch(ctx context.Context) (string, error) {
	var out struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
		Error   string `json:"error,omitempty"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/queue/plans", nil, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("batch planning rejected: %s", fallbackMessage(out.Error))
	}
	return out.JobID, nil
}

func (c *HTTPClient) ExecuteQueue(ctx context.Context, notificationEmail string, termsAccepted bool) (string, error) {
	var out struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
		Error   string `json:"error,omitempty"`
	}
	body := map[string]any{
		"notification_email": notificationEmail,
		"terms_accepted":     termsAccepted,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/queue/execute", body, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("queue execution rejected: %s", fallbackMessage(out.Error))
	}
	return out.JobID, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("research http status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func fallbackMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "no reason given"
	}
	return msg
}
