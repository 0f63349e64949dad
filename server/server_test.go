package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	autoflow "github.com/dxtr-labs/v1.0-sub000"
	"github.com/dxtr-labs/v1.0-sub000/catalog"
	"github.com/dxtr-labs/v1.0-sub000/classify"
	"github.com/dxtr-labs/v1.0-sub000/graph"
	"github.com/dxtr-labs/v1.0-sub000/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server, store.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.New(catalog.Builtins(), logger)
	classifier := classify.New(cat, classify.Builtins(), logger)
	st := store.NewMemoryStore()
	runner := NewRunService(autoflow.ExecutorFunc(func(context.Context, *graph.Workflow) (string, error) {
		return "platform-run-1", nil
	}), st, logger)

	engine := autoflow.NewEngine(autoflow.Config{
		Catalog:    cat,
		Classifier: classifier,
		Executor: autoflow.ExecutorFunc(func(context.Context, *graph.Workflow) (string, error) {
			return "platform-run-1", nil
		}),
		Logger: logger,
	})

	srv := NewServer(Config{
		Engine:     engine,
		Catalog:    cat,
		Classifier: classifier,
		Store:      st,
		Runner:     runner,
		Logger:     logger,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv, st
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return resp, data
}

func registerUser(t *testing.T, baseURL string) string {
	t.Helper()
	resp, data := doJSON(t, http.MethodPost, baseURL+"/api/auth/register", "", RegisterRequest{
		Email:    "dev@example.com",
		Password: "swordfish123",
		Name:     "Dev",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: status %d: %s", resp.StatusCode, data)
	}
	var auth AuthResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		t.Fatalf("decoding auth response: %v", err)
	}
	if auth.Token == "" {
		t.Fatal("register returned no token")
	}
	return auth.Token
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, data := doJSON(t, http.MethodGet, ts.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, data)
	}
}

func TestAuthFlow(t *testing.T) {
	ts, _, _ := newTestServer(t)
	token := registerUser(t, ts.URL)

	// Duplicate registration conflicts.
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register", "", RegisterRequest{
		Email: "dev@example.com", Password: "swordfish123",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", resp.StatusCode)
	}

	resp, data := doJSON(t, http.MethodGet, ts.URL+"/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d: %s", resp.StatusCode, data)
	}
	var me UserResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("decoding me: %v", err)
	}
	if me.Email != "dev@example.com" {
		t.Errorf("me.Email = %q", me.Email)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", LoginRequest{
		Email: "dev@example.com", Password: "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login: status %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("logout: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("me after logout: status %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts, _, _ := newTestServer(t)
	for _, route := range []string{"/api/archetypes", "/api/workflows", "/api/conversations"} {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+route, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without token: status %d, want 401", route, resp.StatusCode)
		}
	}
}

func chatTurn(t *testing.T, baseURL, token, conversationID, message string) ChatResponse {
	t.Helper()
	resp, data := doJSON(t, http.MethodPost, baseURL+"/api/chat", token, ChatRequest{
		ConversationID: conversationID,
		Message:        message,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat %q: status %d: %s", message, resp.StatusCode, data)
	}
	var out struct {
		ConversationID string `json:"conversation_id"`
		State          string `json:"state"`
		Done           bool   `json:"done"`
		Reply          struct {
			Type string          `json:"type"`
			Body json.RawMessage `json:"body"`
		} `json:"reply"`
		Workflow *workflowBrief `json:"workflow"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decoding chat response: %v", err)
	}
	return ChatResponse{
		ConversationID: out.ConversationID,
		State:          out.State,
		Done:           out.Done,
		Reply:          chatReply{Type: out.Reply.Type},
		Workflow:       out.Workflow,
	}
}

func TestChat_FullConversation(t *testing.T) {
	ts, _, st := newTestServer(t)
	token := registerUser(t, ts.URL)

	first := chatTurn(t, ts.URL, token, "",
		"Send an email to ops@example.com saying the database is down. subject: Incident")
	if first.Reply.Type != "candidates" {
		t.Fatalf("first reply type = %q, want candidates", first.Reply.Type)
	}
	convID := first.ConversationID
	if convID == "" {
		t.Fatal("no conversation id assigned")
	}

	if got := chatTurn(t, ts.URL, token, convID, "1"); got.State != "candidate_selected" {
		t.Fatalf("after selection state = %q", got.State)
	}
	preview := chatTurn(t, ts.URL, token, convID, "yes")
	if preview.Reply.Type != "preview" {
		t.Fatalf("reply type = %q, want preview", preview.Reply.Type)
	}

	final := chatTurn(t, ts.URL, token, convID, "yes")
	if !final.Done || final.Reply.Type != "executed" {
		t.Fatalf("final turn: done=%v type=%q", final.Done, final.Reply.Type)
	}
	if final.Workflow == nil || final.Workflow.Name != "Email Notification" {
		t.Fatalf("saved workflow = %+v", final.Workflow)
	}

	// The workflow and its run log landed in the store.
	workflows, err := st.ListWorkflows(context.Background(), "")
	if err != nil || len(workflows) != 1 {
		t.Fatalf("stored workflows: n=%d err=%v", len(workflows), err)
	}
	runs, err := st.ListRuns(context.Background(), workflows[0].ID, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("stored runs: n=%d err=%v", len(runs), err)
	}

	// The conversation snapshot survives and reports its terminal state.
	resp, data := doJSON(t, http.MethodGet, ts.URL+"/api/conversations/"+convID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get conversation: status %d: %s", resp.StatusCode, data)
	}
	var rec store.ConversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decoding conversation: %v", err)
	}
	if rec.State != "executed" {
		t.Errorf("conversation state = %q, want executed", rec.State)
	}
}

func TestChat_TerminalConversationReleasesLock(t *testing.T) {
	ts, srv, _ := newTestServer(t)
	token := registerUser(t, ts.URL)

	first := chatTurn(t, ts.URL, token, "",
		"Send an email to ops@example.com saying the database is down. subject: Incident")
	convID := first.ConversationID

	srv.locksMu.Lock()
	_, held := srv.locks[convID]
	srv.locksMu.Unlock()
	if !held {
		t.Fatal("active conversation should hold a lock entry")
	}

	chatTurn(t, ts.URL, token, convID, "1")
	chatTurn(t, ts.URL, token, convID, "yes")
	final := chatTurn(t, ts.URL, token, convID, "yes")
	if !final.Done {
		t.Fatalf("conversation did not finish: state %q", final.State)
	}

	srv.locksMu.Lock()
	_, held = srv.locks[convID]
	n := len(srv.locks)
	srv.locksMu.Unlock()
	if held {
		t.Error("terminal conversation still holds a lock entry")
	}
	if n != 0 {
		t.Errorf("lock map has %d stale entries", n)
	}
}

func TestChat_UnknownConversation(t *testing.T) {
	ts, _, _ := newTestServer(t)
	token := registerUser(t, ts.URL)
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/chat", token, ChatRequest{
		ConversationID: "nope", Message: "hello",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)
	token := registerUser(t, ts.URL)

	resp, data := doJSON(t, http.MethodPost, ts.URL+"/api/classify", token, ClassifyRequest{
		Text: "schedule a meeting with sam@example.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, data)
	}
	var out struct {
		Candidates []classify.Candidate `json:"candidates"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(out.Candidates) == 0 || out.Candidates[0].CategoryID != "meeting-scheduling" {
		t.Errorf("candidates = %+v", out.Candidates)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/classify", token, ClassifyRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty text: status %d, want 400", resp.StatusCode)
	}
}

func TestConfigureEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)
	token := registerUser(t, ts.URL)

	resp, data := doJSON(t, http.MethodPost, ts.URL+"/api/nodes/http-request/configure", token, ConfigureRequest{
		Text: "fetch data from https://api.example.com/users",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, data)
	}
	var out struct {
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if out.Parameters["method"] != "GET" || out.Parameters["url"] != "https://api.example.com/users" {
		t.Errorf("parameters = %+v", out.Parameters)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/nodes/bogus/configure", token, ConfigureRequest{Text: "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown archetype: status %d, want 404", resp.StatusCode)
	}
}

func TestWorkflowUpdateAndRuns(t *testing.T) {
	ts, _, st := newTestServer(t)
	token := registerUser(t, ts.URL)

	wf := &graph.Workflow{
		Name: "Nightly Report",
		Nodes: []graph.Node{
			{ID: "schedule-trigger_0", Type: "n8n-nodes-base.scheduleTrigger", Name: "Schedule"},
			{ID: "email-send_1", Type: "n8n-nodes-base.emailSend", Name: "Send",
				Parameters: map[string]any{"to": "ops@example.com", "subject": "Report", "text": "..."}},
		},
		Connections: map[string][]graph.Connection{
			"schedule-trigger_0": {{TargetNodeID: "email-send_1"}},
		},
	}
	if err := st.CreateWorkflow(context.Background(), store.WorkflowRecord{
		ID: "wf-1", Name: wf.Name, Definition: wf, Active: true,
	}); err != nil {
		t.Fatalf("seeding workflow: %v", err)
	}

	// A bad cron expression is rejected before storage.
	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/api/workflows/wf-1", token, map[string]any{
		"cron_expr": "not a cron",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad cron: status %d, want 400", resp.StatusCode)
	}

	resp, data := doJSON(t, http.MethodPut, ts.URL+"/api/workflows/wf-1", token, map[string]any{
		"cron_expr": "0 9 * * *",
		"name":      "Morning Report",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d: %s", resp.StatusCode, data)
	}
	rec, _, _ := st.GetWorkflow(context.Background(), "wf-1")
	if rec.Name != "Morning Report" || rec.CronExpr != "0 9 * * *" {
		t.Fatalf("update not applied: %+v", rec)
	}

	resp, data = doJSON(t, http.MethodPost, ts.URL+"/api/workflows/wf-1/run", token, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("run: status %d: %s", resp.StatusCode, data)
	}
	var runResp map[string]string
	if err := json.Unmarshal(data, &runResp); err != nil {
		t.Fatalf("decoding run response: %v", err)
	}
	if runResp["run_id"] == "" {
		t.Fatal("run returned no run id")
	}

	resp, data = doJSON(t, http.MethodGet, ts.URL+"/api/workflows/wf-1/runs?limit=5", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("runs: status %d: %s", resp.StatusCode, data)
	}
	var runsOut struct {
		Runs []store.RunRecord `json:"runs"`
	}
	if err := json.Unmarshal(data, &runsOut); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(runsOut.Runs) != 1 || runsOut.Runs[0].Status != "succeeded" {
		t.Fatalf("runs = %+v", runsOut.Runs)
	}
	if runsOut.Runs[0].Detail != "platform-run-1" {
		t.Errorf("run detail = %q, want the platform run id", runsOut.Runs[0].Detail)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/workflows/wf-1", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/workflows/wf-1", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", resp.StatusCode)
	}
}

func TestWorkflowOwnership(t *testing.T) {
	ts, _, st := newTestServer(t)
	token := registerUser(t, ts.URL)

	if err := st.CreateWorkflow(context.Background(), store.WorkflowRecord{
		ID: "wf-other", UserID: "someone-else", Name: "Private",
		Definition: &graph.Workflow{Name: "Private"}, Active: true,
	}); err != nil {
		t.Fatalf("seeding workflow: %v", err)
	}

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/workflows/wf-other", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign workflow: status %d, want 404", resp.StatusCode)
	}
}

func TestRunService_ExecutionFailureIsLogged(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	runner := NewRunService(autoflow.ExecutorFunc(func(context.Context, *graph.Workflow) (string, error) {
		return "", fmt.Errorf("platform rejected the workflow")
	}), st, logger)

	wf := &graph.Workflow{
		Name:  "W",
		Nodes: []graph.Node{{ID: "t", Type: "n8n-nodes-base.manualTrigger", Name: "Start"}},
	}
	rec := store.WorkflowRecord{ID: "wf-1", Name: "W", Definition: wf, Active: true}
	if err := st.CreateWorkflow(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	runID, err := runner.Run(context.Background(), rec)
	if err == nil {
		t.Fatal("want error from failing executor")
	}
	runs, _ := st.ListRuns(context.Background(), "wf-1", 0)
	if len(runs) != 1 || runs[0].ID != runID || runs[0].Status != "failed" {
		t.Fatalf("runs = %+v", runs)
	}
}
