package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dxtr-labs/v1.0-sub000/graph"
	"github.com/dxtr-labs/v1.0-sub000/store"
)

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request, userID string) {
	records, err := s.store.ListWorkflows(r.Context(), userID)
	if err != nil {
		s.logger.Error("listing workflows", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list workflows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": records})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request, userID string) {
	rec, ok := s.ownedWorkflow(w, r, userID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateWorkflowRequest is the JSON body for PUT /api/workflows/{id}.
// Omitted fields keep their stored values.
type UpdateWorkflowRequest struct {
	Name       *string         `json:"name,omitempty"`
	Definition *graph.Workflow `json:"definition,omitempty"`
	CronExpr   *string         `json:"cron_expr,omitempty"`
	Active     *bool           `json:"active,omitempty"`
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request, userID string) {
	rec, ok := s.ownedWorkflow(w, r, userID)
	if !ok {
		return
	}

	var req UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Name != nil {
		rec.Name = *req.Name
	}
	if req.Definition != nil {
		if diags := req.Definition.Validate(); graph.HasErrors(diags) {
			writeError(w, http.StatusUnprocessableEntity, "invalid_workflow", "workflow failed validation", diagnosticMessages(diags)...)
			return
		}
		rec.Definition = req.Definition
	}
	if req.CronExpr != nil {
		expr := strings.TrimSpace(*req.CronExpr)
		if expr != "" {
			if _, err := parseCronExpressionUTC(expr); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_cron", err.Error())
				return
			}
		}
		rec.CronExpr = expr
	}
	if req.Active != nil {
		rec.Active = *req.Active
	}

	if err := s.store.UpdateWorkflow(r.Context(), rec); err != nil {
		if errors.Is(err, store.ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, "workflow_not_found", "workflow not found")
			return
		}
		s.logger.Error("updating workflow", "workflow_id", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not update workflow")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request, userID string) {
	rec, ok := s.ownedWorkflow(w, r, userID)
	if !ok {
		return
	}
	if err := s.store.DeleteWorkflow(r.Context(), rec.ID); err != nil {
		if errors.Is(err, store.ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, "workflow_not_found", "workflow not found")
			return
		}
		s.logger.Error("deleting workflow", "workflow_id", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not delete workflow")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request, userID string) {
	rec, ok := s.ownedWorkflow(w, r, userID)
	if !ok {
		return
	}
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "no_runner", "no execution backend configured")
		return
	}

	runID, err := s.runner.Run(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusBadGateway, "run_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request, userID string) {
	rec, ok := s.ownedWorkflow(w, r, userID)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), rec.ID, limit)
	if err != nil {
		s.logger.Error("listing runs", "workflow_id", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// ownedWorkflow loads the path's workflow and enforces ownership. On
// failure it writes the error response and returns ok=false.
func (s *Server) ownedWorkflow(w http.ResponseWriter, r *http.Request, userID string) (store.WorkflowRecord, bool) {
	rec, ok, err := s.store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("loading workflow", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load workflow")
		return store.WorkflowRecord{}, false
	}
	if !ok || (userID != "" && rec.UserID != "" && rec.UserID != userID) {
		writeError(w, http.StatusNotFound, "workflow_not_found", "workflow not found")
		return store.WorkflowRecord{}, false
	}
	return rec, true
}

func diagnosticMessages(diags []graph.Diagnostic) []string {
	msgs := make([]string, 0, len(diags))
	for _, d := range diags {
		msgs = append(msgs, d.Code+": "+d.Message)
	}
	return msgs
}
