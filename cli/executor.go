package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	autoflow "github.com/dxtr-labs/v1.0-sub000"
	"github.com/dxtr-labs/v1.0-sub000/graph"
)

// platformExecutor deploys confirmed workflows by POSTing them to an
// external automation platform and returning the platform's id for the
// deployment.
type platformExecutor struct {
	url    string
	apiKey string
	client *http.Client
}

func newPlatformExecutor(url, apiKey string) *platformExecutor {
	return &platformExecutor{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *platformExecutor) Execute(ctx context.Context, wf *graph.Workflow) (string, error) {
	body, err := json.Marshal(wf)
	if err != nil {
		return "", fmt.Errorf("encoding workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building platform request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling platform: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("platform returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	var out struct {
		ID    string `json:"id"`
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding platform response: %w", err)
	}
	if out.RunID != "" {
		return out.RunID, nil
	}
	return out.ID, nil
}

var _ autoflow.Executor = (*platformExecutor)(nil)

// localExecutor accepts workflows without a downstream platform. Runs get
// an id and a run-log entry but nothing is deployed. Used when no
// --platform-url is configured.
var localExecutor = autoflow.ExecutorFunc(func(context.Context, *graph.Workflow) (string, error) {
	return uuid.NewString(), nil
})
