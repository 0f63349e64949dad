// Package enhance defines the optional AI-enhancement collaborator used to
// refine rule-based node configurations. The core computes the rule-based
// result first and treats enhancement as strictly additive: a failed or
// slow collaborator never degrades a turn.
package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Request describes one node-configuration refinement.
type Request struct {
	ArchetypeID string         `json:"archetype_id"`
	MachineType string         `json:"machine_type"`
	Instruction string         `json:"instruction"`
	Current     map[string]any `json:"current,omitempty"`
	Service     string         `json:"service,omitempty"` // user-selected AI service id
}

// Result is the collaborator's suggestion set. Parameters only ever fill
// fields the rule-based pass left absent; Confidence may raise but never
// lower the rule-based score.
type Result struct {
	Parameters  map[string]any `json:"parameters"`
	Explanation string         `json:"explanation,omitempty"`
	Confidence  float64        `json:"confidence"`
}

// Enhancer is implemented by AI-enhancement backends.
type Enhancer interface {
	Enhance(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to the Enhancer interface.
type Func func(ctx context.Context, req Request) (Result, error)

// Enhance calls f.
func (f Func) Enhance(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// BuildPrompt renders the instruction the backend model receives. Kept
// here so every backend phrases the task identically.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are configuring one workflow node of type ")
	b.WriteString(req.MachineType)
	b.WriteString(".\nUser instruction: ")
	b.WriteString(req.Instruction)
	if len(req.Current) > 0 {
		current, _ := json.Marshal(req.Current)
		b.WriteString("\nParameters already known: ")
		b.Write(current)
	}
	b.WriteString("\nRespond with a JSON object: {\"parameters\": {...}, \"explanation\": \"...\", \"confidence\": 0.0}")
	return b.String()
}

// ParseResult decodes a model response into a Result. Models sometimes
// wrap JSON in code fences; those are stripped before decoding.
func ParseResult(output string) (Result, error) {
	trimmed := strings.TrimSpace(output)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var res Result
	if err := json.Unmarshal([]byte(trimmed), &res); err != nil {
		return Result{}, fmt.Errorf("parsing enhancement response: %w", err)
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	}
	if res.Confidence > 1 {
		res.Confidence = 1
	}
	return res, nil
}
