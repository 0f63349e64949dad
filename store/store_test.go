package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dxtr-labs/v1.0-sub000/graph"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "autoflow.sqlite")
	s, err := NewSQLiteStore(SQLiteConfig{DSN: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Both implementations run the same suite.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
}

func sampleWorkflow() *graph.Workflow {
	return &graph.Workflow{
		Name: "Email Notification",
		Nodes: []graph.Node{
			{ID: "manual-trigger_0", Type: "n8n-nodes-base.manualTrigger", Name: "Start", Position: [2]int{250, 300}},
			{ID: "email-send_1", Type: "n8n-nodes-base.emailSend", Name: "Send Email",
				Parameters: map[string]any{"to": "ops@example.com"}, Position: [2]int{550, 300}},
		},
		Connections: map[string][]graph.Connection{
			"manual-trigger_0": {{TargetNodeID: "email-send_1"}},
		},
	}
}

func TestWorkflowCRUD(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec := WorkflowRecord{
			ID:         "wf-1",
			UserID:     "u1",
			Name:       "Email Notification",
			CategoryID: "email-automation",
			Definition: sampleWorkflow(),
			Active:     true,
		}

		if err := s.CreateWorkflow(ctx, rec); err != nil {
			t.Fatalf("CreateWorkflow: %v", err)
		}
		if err := s.CreateWorkflow(ctx, rec); !errors.Is(err, ErrWorkflowExists) {
			t.Fatalf("duplicate create: got %v, want ErrWorkflowExists", err)
		}

		got, ok, err := s.GetWorkflow(ctx, "wf-1")
		if err != nil || !ok {
			t.Fatalf("GetWorkflow: ok=%v err=%v", ok, err)
		}
		if got.Name != "Email Notification" || got.Definition == nil || len(got.Definition.Nodes) != 2 {
			t.Fatalf("GetWorkflow: got %+v", got)
		}
		if got.Definition.Nodes[1].Parameters["to"] != "ops@example.com" {
			t.Errorf("definition parameters lost: %+v", got.Definition.Nodes[1].Parameters)
		}

		if _, ok, err := s.GetWorkflow(ctx, "missing"); err != nil || ok {
			t.Fatalf("GetWorkflow missing: ok=%v err=%v", ok, err)
		}

		got.Name = "Renamed"
		got.CronExpr = "0 9 * * *"
		if err := s.UpdateWorkflow(ctx, got); err != nil {
			t.Fatalf("UpdateWorkflow: %v", err)
		}
		updated, _, _ := s.GetWorkflow(ctx, "wf-1")
		if updated.Name != "Renamed" || updated.CronExpr != "0 9 * * *" {
			t.Fatalf("UpdateWorkflow not applied: %+v", updated)
		}

		if err := s.UpdateWorkflow(ctx, WorkflowRecord{ID: "missing"}); !errors.Is(err, ErrWorkflowNotFound) {
			t.Fatalf("update missing: got %v, want ErrWorkflowNotFound", err)
		}

		list, err := s.ListWorkflows(ctx, "u1")
		if err != nil || len(list) != 1 {
			t.Fatalf("ListWorkflows: n=%d err=%v", len(list), err)
		}
		if list, _ := s.ListWorkflows(ctx, "other-user"); len(list) != 0 {
			t.Errorf("ListWorkflows must filter by user, got %d", len(list))
		}

		if err := s.DeleteWorkflow(ctx, "wf-1"); err != nil {
			t.Fatalf("DeleteWorkflow: %v", err)
		}
		if err := s.DeleteWorkflow(ctx, "wf-1"); !errors.Is(err, ErrWorkflowNotFound) {
			t.Fatalf("delete missing: got %v, want ErrWorkflowNotFound", err)
		}
	})
}

func TestListScheduled(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		workflows := []WorkflowRecord{
			{ID: "wf-cron", Name: "Scheduled", Definition: sampleWorkflow(), CronExpr: "*/5 * * * *", Active: true},
			{ID: "wf-manual", Name: "Manual", Definition: sampleWorkflow(), Active: true},
			{ID: "wf-paused", Name: "Paused", Definition: sampleWorkflow(), CronExpr: "0 * * * *", Active: false},
		}
		for _, rec := range workflows {
			if err := s.CreateWorkflow(ctx, rec); err != nil {
				t.Fatalf("CreateWorkflow(%s): %v", rec.ID, err)
			}
		}

		scheduled, err := s.ListScheduled(ctx)
		if err != nil {
			t.Fatalf("ListScheduled: %v", err)
		}
		if len(scheduled) != 1 || scheduled[0].ID != "wf-cron" {
			t.Fatalf("ListScheduled = %+v, want only wf-cron", scheduled)
		}
	})
}

func TestRunLogs(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.CreateWorkflow(ctx, WorkflowRecord{ID: "wf-1", Name: "W", Definition: sampleWorkflow(), Active: true}); err != nil {
			t.Fatalf("CreateWorkflow: %v", err)
		}

		start := time.Now().UTC().Add(-time.Minute)
		if err := s.CreateRun(ctx, RunRecord{ID: "run-1", WorkflowID: "wf-1", Status: "running", StartedAt: start}); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		if err := s.CreateRun(ctx, RunRecord{ID: "run-2", WorkflowID: "wf-1", Status: "running", StartedAt: start.Add(time.Second)}); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}

		if err := s.FinishRun(ctx, "run-1", "succeeded", "", time.Now().UTC()); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
		if err := s.FinishRun(ctx, "missing", "failed", "", time.Now().UTC()); !errors.Is(err, ErrRunNotFound) {
			t.Fatalf("finish missing: got %v, want ErrRunNotFound", err)
		}

		runs, err := s.ListRuns(ctx, "wf-1", 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("got %d runs, want 2", len(runs))
		}
		if runs[0].ID != "run-2" {
			t.Errorf("runs not newest-first: %+v", runs)
		}
		if runs[1].Status != "succeeded" {
			t.Errorf("run-1 status = %q, want succeeded", runs[1].Status)
		}

		limited, _ := s.ListRuns(ctx, "wf-1", 1)
		if len(limited) != 1 {
			t.Errorf("limit ignored: got %d runs", len(limited))
		}
	})
}

func TestConversations(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec := ConversationRecord{
			ID:     "conv-1",
			UserID: "u1",
			State:  "searching",
			Data:   json.RawMessage(`{"id":"conv-1","state":"searching"}`),
		}
		if err := s.SaveConversation(ctx, rec); err != nil {
			t.Fatalf("SaveConversation: %v", err)
		}

		// Saving again updates in place.
		rec.State = "configuring_node"
		if err := s.SaveConversation(ctx, rec); err != nil {
			t.Fatalf("SaveConversation update: %v", err)
		}

		got, ok, err := s.GetConversation(ctx, "conv-1")
		if err != nil || !ok {
			t.Fatalf("GetConversation: ok=%v err=%v", ok, err)
		}
		if got.State != "configuring_node" {
			t.Errorf("state = %q, want configuring_node", got.State)
		}

		list, err := s.ListConversations(ctx, "u1")
		if err != nil || len(list) != 1 {
			t.Fatalf("ListConversations: n=%d err=%v", len(list), err)
		}

		if err := s.DeleteConversation(ctx, "conv-1"); err != nil {
			t.Fatalf("DeleteConversation: %v", err)
		}
		if err := s.DeleteConversation(ctx, "conv-1"); !errors.Is(err, ErrConversationNotFound) {
			t.Fatalf("delete missing: got %v, want ErrConversationNotFound", err)
		}
	})
}

func TestAuth(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := UserRecord{ID: "u1", Email: "Dev@Example.com", Name: "Dev", PasswordHash: "x"}
		if err := s.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		if err := s.CreateUser(ctx, user); !errors.Is(err, ErrUserExists) {
			t.Fatalf("duplicate user: got %v, want ErrUserExists", err)
		}

		// Email lookup is case-insensitive.
		got, ok, err := s.GetUserByEmail(ctx, "dev@example.com")
		if err != nil || !ok || got.ID != "u1" {
			t.Fatalf("GetUserByEmail: got=%+v ok=%v err=%v", got, ok, err)
		}

		sess := SessionRecord{ID: "s1", UserID: "u1", Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if _, ok, err := s.GetSessionByToken(ctx, "tok-1"); err != nil || !ok {
			t.Fatalf("GetSessionByToken: ok=%v err=%v", ok, err)
		}
		if _, ok, _ := s.GetSessionByToken(ctx, "unknown"); ok {
			t.Fatal("unknown token must not resolve")
		}

		expired := SessionRecord{ID: "s2", UserID: "u1", Token: "tok-2", ExpiresAt: time.Now().Add(-time.Hour)}
		if err := s.CreateSession(ctx, expired); err != nil {
			t.Fatalf("CreateSession expired: %v", err)
		}
		if _, _, err := s.GetSessionByToken(ctx, "tok-2"); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expired token: got %v, want ErrSessionExpired", err)
		}

		if err := s.CleanExpiredSessions(ctx); err != nil {
			t.Fatalf("CleanExpiredSessions: %v", err)
		}
		if err := s.DeleteSession(ctx, "s1"); err != nil {
			t.Fatalf("DeleteSession: %v", err)
		}
		if err := s.DeleteSession(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("delete missing session: got %v, want ErrSessionNotFound", err)
		}
	})
}
