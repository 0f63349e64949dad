package irisenhance

import (
	"context"
	"errors"
	"strings"
	"testing"

	iriscore "github.com/petal-labs/iris/core"

	"github.com/dxtr-labs/v1.0-sub000/enhance"
)

// mockProvider implements iriscore.Provider for testing.
type mockProvider struct {
	id           string
	chatResponse *iriscore.ChatResponse
	chatError    error
	capturedReq  *iriscore.ChatRequest
}

func (m *mockProvider) ID() string { return m.id }

func (m *mockProvider) Chat(_ context.Context, req *iriscore.ChatRequest) (*iriscore.ChatResponse, error) {
	m.capturedReq = req
	if m.chatError != nil {
		return nil, m.chatError
	}
	return m.chatResponse, nil
}

func (m *mockProvider) StreamChat(context.Context, *iriscore.ChatRequest) (*iriscore.ChatStream, error) {
	return nil, nil
}

func (m *mockProvider) Models() []iriscore.ModelInfo {
	return []iriscore.ModelInfo{{ID: "mock-model"}}
}

func (m *mockProvider) Supports(f iriscore.Feature) bool {
	return f == iriscore.FeatureChat
}

func TestEnhance_ParsesSuggestions(t *testing.T) {
	mock := &mockProvider{
		id: "test",
		chatResponse: &iriscore.ChatResponse{
			Output: `{"parameters": {"subject": "Outage"}, "explanation": "filled subject", "confidence": 0.85}`,
		},
	}
	e := NewFromProvider(mock, "mock-model")

	res, err := e.Enhance(context.Background(), enhance.Request{
		MachineType: "n8n-nodes-base.emailSend",
		Instruction: "email ops about the outage",
	})
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if res.Parameters["subject"] != "Outage" || res.Confidence != 0.85 {
		t.Errorf("unexpected result: %+v", res)
	}
	if mock.capturedReq == nil || len(mock.capturedReq.Messages) != 1 {
		t.Fatal("expected one chat message")
	}
	if !strings.Contains(mock.capturedReq.Messages[0].Content, "n8n-nodes-base.emailSend") {
		t.Error("prompt should name the node machine type")
	}
}

func TestEnhance_ProviderError(t *testing.T) {
	e := NewFromProvider(&mockProvider{id: "test", chatError: errors.New("boom")}, "mock-model")
	if _, err := e.Enhance(context.Background(), enhance.Request{}); err == nil {
		t.Error("want error when the provider fails")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Model: "m"}); err == nil {
		t.Error("want error for missing provider")
	}
	if _, err := New(Config{Provider: "openai"}); err == nil {
		t.Error("want error for missing model")
	}
}
