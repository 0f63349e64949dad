package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	autoflow "github.com/dxtr-labs/v1.0-sub000"
	"github.com/dxtr-labs/v1.0-sub000/graph"
	"github.com/dxtr-labs/v1.0-sub000/store"
)

func TestParseCronExpressionUTC(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 9 * * *", false},
		{"*/5 * * * *", false},
		{"", true},
		{"not a cron", true},
		{"CRON_TZ=America/New_York 0 9 * * *", true},
		{"TZ=UTC 0 9 * * *", true},
		{"0 9 * * * *", true}, // six fields
	}
	for _, tt := range tests {
		_, err := parseCronExpressionUTC(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCronExpressionUTC(%q) err = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestNextCronRunUTC(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	next, err := nextCronRunUTC("0 9 * * *", now)
	if err != nil {
		t.Fatalf("nextCronRunUTC: %v", err)
	}
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

// fakeClock is a manually advanced clock for scheduler tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestScheduler_RunsDueWorkflows(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 30, 0, time.UTC)}

	executed := make(chan string, 4)
	runner := NewRunService(autoflow.ExecutorFunc(func(_ context.Context, wf *graph.Workflow) (string, error) {
		executed <- wf.Name
		return "platform-run", nil
	}), st, logger)

	wf := &graph.Workflow{
		Name:  "Every Five Minutes",
		Nodes: []graph.Node{{ID: "t", Type: "n8n-nodes-base.scheduleTrigger", Name: "Schedule"}},
	}
	if err := st.CreateWorkflow(context.Background(), store.WorkflowRecord{
		ID: "wf-cron", Name: wf.Name, Definition: wf, CronExpr: "*/5 * * * *", Active: true,
	}); err != nil {
		t.Fatal(err)
	}

	sched, err := NewScheduler(SchedulerConfig{
		Store:  st,
		Runner: runner,
		Now:    clock.Now,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	// First pass registers the schedule without firing it.
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	select {
	case name := <-executed:
		t.Fatalf("workflow %q ran before its first due time", name)
	default:
	}

	// Cross the next cron boundary.
	clock.Advance(6 * time.Minute)
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	select {
	case name := <-executed:
		if name != "Every Five Minutes" {
			t.Errorf("executed %q", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("due workflow did not run")
	}

	// A pass inside the same window must not fire again.
	waitForRuns(t, st, "wf-cron", 1)
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	select {
	case name := <-executed:
		t.Fatalf("workflow %q ran twice in one window", name)
	default:
	}
}

func TestScheduler_ForgetsUnscheduledWorkflows(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 30, 0, time.UTC)}
	runner := NewRunService(autoflow.ExecutorFunc(func(context.Context, *graph.Workflow) (string, error) {
		return "", nil
	}), st, logger)

	rec := store.WorkflowRecord{
		ID:   "wf-cron",
		Name: "W",
		Definition: &graph.Workflow{
			Name:  "W",
			Nodes: []graph.Node{{ID: "t", Type: "n8n-nodes-base.scheduleTrigger", Name: "S"}},
		},
		CronExpr: "*/5 * * * *",
		Active:   true,
	}
	if err := st.CreateWorkflow(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	sched, err := NewScheduler(SchedulerConfig{Store: st, Runner: runner, Now: clock.Now, Logger: logger})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(sched.nextRun) != 1 {
		t.Fatalf("tracked schedules = %d, want 1", len(sched.nextRun))
	}

	rec.Active = false
	if err := st.UpdateWorkflow(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(sched.nextRun) != 0 {
		t.Errorf("deactivated workflow still tracked: %v", sched.nextRun)
	}
}

func waitForRuns(t *testing.T, st store.RunLogStore, workflowID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runs, err := st.ListRuns(context.Background(), workflowID, 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d runs", want)
}
