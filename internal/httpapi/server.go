package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mlauria/lexflow/internal/config"
	"github.com/mlauria/lexflow/internal/observability"
	"github.com/mlauria/lexflow/internal/workflow"
)

type Server struct {
	cfg       config.Config
	workflows *workflow.Registry
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, workflows *workflow.Registry, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		workflows: workflows,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up, so other websites
				// cannot drive a user's workflow if the service is ever
				// exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/workflows", s.handleCreateWorkflow)
	r.Get("/v1/workflows/{id}", s.handleGetWorkflow)
	r.Delete("/v1/workflows/{id}", s.handleDeleteWorkflow)
	r.Post("/v1/workflows/{id}/restore", s.handleRestoreWorkflow)
	r.Post("/v1/workflows/{id}/close", s.handleCloseWorkflow)
	r.Get("/v1/workflows/{id}/ws", s.handleWorkflowWS)

	r.Post("/v1/workflows/{id}/plan", s.handleCreatePlan)
	r.Post("/v1/workflows/{id}/plan/case-limit", s.handleAdjustCaseLimit)
	r.Post("/v1/workflows/{id}/execute", s.handleExecutePlan)

	r.Post("/v1/workflows/{id}/queue/tasks", s.handleAddQueueTask)
	r.Delete("/v1/workflows/{id}/queue/tasks/{taskID}", s.handleRemoveQueueTask)
	r.Post("/v1/workflows/{id}/queue/plans", s.handleGenerateQueuePlans)
	r.Post("/v1/workflows/{id}/queue/execute", s.handleExecuteQueue)
	r.Post("/v1/workflows/{id}/queue/results", s.handleViewQueueResults)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// controllerFor resolves the workflow named in the request path, writing
// the error response itself when there is none.
func (s *Server) controllerFor(w http.ResponseWriter, r *http.Request) (*workflow.Controller, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_workflow_id", "missing workflow id")
		return nil, false
	}
	c, err := s.workflows.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "workflow_not_found", err.Error())
		return nil, false
	}
	return c, true
}

// respondOpError maps a workflow operation error onto the HTTP surface.
func respondOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrEmptyQuery):
		respondError(w, http.StatusBadRequest, "empty_query", err.Error())
	case errors.Is(err, workflow.ErrTermsNeeded):
		respondError(w, http.StatusBadRequest, "terms_required", err.Error())
	case errors.Is(err, workflow.ErrInvalidPhase):
		respondError(w, http.StatusConflict, "invalid_phase", err.Error())
	case errors.Is(err, workflow.ErrNoPlan):
		respondError(w, http.StatusConflict, "no_plan", err.Error())
	case errors.Is(err, workflow.ErrQueueRunning):
		respondError(w, http.StatusConflict, "queue_running", err.Error())
	default:
		respondError(w, http.StatusBadGateway, "upstream_error", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
