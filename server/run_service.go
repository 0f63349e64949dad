package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	autoflow "github.com/dxtr-labs/v1.0-sub000"
	"github.com/dxtr-labs/v1.0-sub000/graph"
	"github.com/dxtr-labs/v1.0-sub000/store"
)

// RunService validates a saved workflow, hands it to the execution
// platform, and records the outcome in the run log.
type RunService struct {
	executor autoflow.Executor
	store    store.RunLogStore
	logger   *slog.Logger
}

// NewRunService creates a run service.
func NewRunService(executor autoflow.Executor, logs store.RunLogStore, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{executor: executor, store: logs, logger: logger}
}

// Run executes one workflow and returns the run log id.
func (r *RunService) Run(ctx context.Context, rec store.WorkflowRecord) (string, error) {
	if r.executor == nil {
		return "", errors.New("no execution backend configured")
	}
	if rec.Definition == nil {
		return "", fmt.Errorf("workflow %s has no definition", rec.ID)
	}
	if diags := rec.Definition.Validate(); graph.HasErrors(diags) {
		return "", fmt.Errorf("workflow %s failed validation: %s", rec.ID, firstErrorMessage(diags))
	}

	runID := uuid.NewString()
	started := time.Now().UTC()
	if err := r.store.CreateRun(ctx, store.RunRecord{
		ID:         runID,
		WorkflowID: rec.ID,
		Status:     "running",
		StartedAt:  started,
	}); err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}

	platformID, execErr := r.executor.Execute(ctx, rec.Definition)
	finished := time.Now().UTC()

	status, detail := "succeeded", platformID
	if execErr != nil {
		status, detail = "failed", execErr.Error()
	}
	if err := r.store.FinishRun(ctx, runID, status, detail, finished); err != nil {
		r.logger.Error("finalizing run log", "run_id", runID, "workflow_id", rec.ID, "error", err)
	}

	if execErr != nil {
		return runID, fmt.Errorf("executing workflow %s: %w", rec.ID, execErr)
	}
	return runID, nil
}

func firstErrorMessage(diags []graph.Diagnostic) string {
	for _, d := range diags {
		if d.Severity == graph.SeverityError {
			return d.Message
		}
	}
	return "unknown validation error"
}
