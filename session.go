// Package autoflow turns free-form automation requests into executable
// workflow graphs through a multi-turn conversation: workflow search,
// candidate selection, per-node configuration, preview, and confirmation.
package autoflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/dxtr-labs/v1.0-sub000/catalog"
	"github.com/dxtr-labs/v1.0-sub000/classify"
)

// State identifies where a conversation is in the build flow.
type State string

const (
	StateSearching          State = "searching"
	StateCandidateSelected  State = "candidate_selected"
	StateConfiguringNode    State = "configuring_node"
	StateAwaitingService    State = "awaiting_service_selection"
	StateAwaitingPreview    State = "awaiting_preview_confirmation"
	StateAwaitingEmailEdit  State = "awaiting_email_edit"
	StateExecuted           State = "executed"
	StateCancelled          State = "cancelled"
)

// Terminal reports whether the state ends the conversation. A new session
// is required to continue after a terminal state.
func (s State) Terminal() bool {
	return s == StateExecuted || s == StateCancelled
}

// PlannedNode is one step of the selected template, bound to its archetype.
type PlannedNode struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Archetype catalog.Archetype `json:"archetype"`
}

// Session is the long-lived per-conversation aggregate. It is exclusively
// owned by Engine.Advance; callers must serialize turns per session.
type Session struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id,omitempty"`
	State        State                `json:"state"`
	Candidates   []classify.Candidate `json:"candidates,omitempty"`
	CategoryID   string               `json:"category_id,omitempty"`
	TemplateName string               `json:"template_name,omitempty"`

	Nodes          []PlannedNode             `json:"nodes,omitempty"`
	CurrentNode    int                       `json:"current_node"`
	Completed      map[string]map[string]any `json:"completed,omitempty"` // node id -> accumulated parameters
	NodeConfidence map[string]float64        `json:"node_confidence,omitempty"`
	Seed           map[string]string         `json:"seed,omitempty"` // candidate parameters carried into configuration

	PendingQuestions   []string `json:"pending_questions,omitempty"`
	PendingServiceText string   `json:"pending_service_text,omitempty"`
	ReturnState        State    `json:"return_state,omitempty"`
	ServiceID          string   `json:"service_id,omitempty"`
	LastRunID          string   `json:"last_run_id,omitempty"`

	History   []string  `json:"history,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a session in the initial Searching state.
func NewSession(userID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		State:          StateSearching,
		Completed:      make(map[string]map[string]any),
		NodeConfidence: make(map[string]float64),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Turn is one user input. Confirm, when set, overrides yes/no parsing of
// the text (UIs with explicit confirm buttons populate it).
type Turn struct {
	Text    string `json:"text"`
	Confirm *bool  `json:"confirm,omitempty"`
}
