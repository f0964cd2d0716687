package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mlauria/lexflow/internal/research"
)

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, _ *http.Request) {
	c := s.workflows.Create()
	respondJSON(w, http.StatusCreated, c.Snapshot())
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_workflow_id", "missing workflow id")
		return
	}
	if err := s.workflows.Remove(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, "workflow_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

// handleRestoreWorkflow revives a workflow from the session store, creating
// the controller if it is not live. Restoring an id with no persisted
// session yields a fresh workflow on the input step.
func (s *Server) handleRestoreWorkflow(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_workflow_id", "missing workflow id")
		return
	}
	c, err := s.workflows.Open(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "restore_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleCloseWorkflow(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	var req struct {
		ClearQueue bool `json:"clear_queue"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var err error
	if req.ClearQueue {
		err = c.ClearAndCloseQueue(r.Context())
	} else {
		err = c.CloseSession(r.Context())
	}
	if err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := c.CreatePlan(r.Context(), req.Query); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) handleAdjustCaseLimit(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	var req struct {
		CaseCount int `json:"case_count"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := c.AdjustCaseLimit(req.CaseCount); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	var req struct {
		PlanID            string                      `json:"plan_id"`
		NotificationPrefs *research.NotificationPrefs `json:"notification_prefs"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.PlanID) == "" {
		if snap := c.Snapshot(); snap.Plan != nil {
			req.PlanID = snap.Plan.PlanID
		}
	}
	if err := c.ExecutePlan(r.Context(), req.PlanID, req.NotificationPrefs); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) handleAddQueueTask(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := c.AddToQueue(r.Context(), req.Query); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c.Snapshot())
}

func (s *Server) handleRemoveQueueTask(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	taskID := strings.TrimSpace(chi.URLParam(r, "taskID"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	if err := c.RemoveFromQueue(r.Context(), taskID); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleGenerateQueuePlans(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	if err := c.GenerateAllPlans(r.Context()); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) handleExecuteQueue(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	var req struct {
		NotificationEmail string `json:"notification_email"`
		TermsAccepted     bool   `json:"terms_accepted"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := c.ExecuteQueue(r.Context(), req.NotificationEmail, req.TermsAccepted); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) handleViewQueueResults(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	if err := c.ViewQueueResults(); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.Snapshot())
}
