// Package irisenhance provides an enhance.Enhancer backed by iris LLM
// providers. It lives in its own package so the core never imports iris.
package irisenhance

import (
	"context"
	"fmt"

	iriscore "github.com/petal-labs/iris/core"
	"github.com/petal-labs/iris/providers"
	// Auto-register common providers.
	_ "github.com/petal-labs/iris/providers/anthropic"
	_ "github.com/petal-labs/iris/providers/ollama"
	_ "github.com/petal-labs/iris/providers/openai"

	"github.com/dxtr-labs/v1.0-sub000/enhance"
)

// Config configures an iris-backed enhancer.
type Config struct {
	Provider string // iris provider id, e.g. "openai", "anthropic", "ollama"
	APIKey   string
	Model    string
}

// Enhancer adapts an iris provider to the enhance.Enhancer interface.
type Enhancer struct {
	provider iriscore.Provider
	model    string
}

// New creates an enhancer for the named iris provider.
func New(cfg Config) (*Enhancer, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("enhancer provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("enhancer model is required")
	}
	provider, err := providers.Create(cfg.Provider, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("creating provider %q: %w", cfg.Provider, err)
	}
	return &Enhancer{provider: provider, model: cfg.Model}, nil
}

// NewFromProvider wraps an already-constructed provider. Used by tests.
func NewFromProvider(provider iriscore.Provider, model string) *Enhancer {
	return &Enhancer{provider: provider, model: model}
}

// Enhance sends the configuration prompt to the model and parses the
// JSON suggestion set out of the response.
func (e *Enhancer) Enhance(ctx context.Context, req enhance.Request) (enhance.Result, error) {
	chatReq := &iriscore.ChatRequest{
		Model: iriscore.ModelID(e.model),
		Messages: []iriscore.Message{
			{Role: iriscore.RoleUser, Content: enhance.BuildPrompt(req)},
		},
	}

	resp, err := e.provider.Chat(ctx, chatReq)
	if err != nil {
		return enhance.Result{}, fmt.Errorf("provider chat failed: %w", err)
	}
	return enhance.ParseResult(resp.Output)
}

var _ enhance.Enhancer = (*Enhancer)(nil)
