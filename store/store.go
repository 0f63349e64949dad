// Package store defines persistence for users, API sessions, saved
// conversations, saved workflows, and execution run logs. Two
// implementations are provided: an in-memory store for tests and
// development, and a SQLite store for real deployments.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dxtr-labs/v1.0-sub000/graph"
)

// Sentinel errors for store operations.
var (
	ErrWorkflowExists       = errors.New("workflow already exists")
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrRunNotFound          = errors.New("run not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExpired       = errors.New("session expired")
	ErrInvalidCredential    = errors.New("invalid credentials")
)

// UserRecord represents a stored user account.
type UserRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionRecord represents an active API session.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationRecord is a persisted conversation snapshot. Data carries
// the serialized session so the engine can resume it on the next turn.
type ConversationRecord struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	State     string          `json:"state"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WorkflowRecord is a saved, executable workflow. CronExpr, when set,
// re-runs the workflow on that schedule while Active is true.
type WorkflowRecord struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id,omitempty"`
	Name       string          `json:"name"`
	CategoryID string          `json:"category_id,omitempty"`
	Definition *graph.Workflow `json:"definition"`
	CronExpr   string          `json:"cron_expr,omitempty"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// RunRecord is one execution log entry for a saved workflow.
type RunRecord struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Status     string    `json:"status"` // running, succeeded, failed
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// AuthStore persists users and API sessions.
type AuthStore interface {
	CreateUser(ctx context.Context, rec UserRecord) error
	GetUserByEmail(ctx context.Context, email string) (UserRecord, bool, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, bool, error)
	CreateSession(ctx context.Context, sess SessionRecord) error
	GetSessionByToken(ctx context.Context, token string) (SessionRecord, bool, error)
	DeleteSession(ctx context.Context, id string) error
	CleanExpiredSessions(ctx context.Context) error
}

// ConversationStore persists conversation snapshots.
type ConversationStore interface {
	SaveConversation(ctx context.Context, rec ConversationRecord) error
	GetConversation(ctx context.Context, id string) (ConversationRecord, bool, error)
	ListConversations(ctx context.Context, userID string) ([]ConversationRecord, error)
	DeleteConversation(ctx context.Context, id string) error
}

// WorkflowStore provides CRUD for saved workflows.
type WorkflowStore interface {
	ListWorkflows(ctx context.Context, userID string) ([]WorkflowRecord, error)
	GetWorkflow(ctx context.Context, id string) (WorkflowRecord, bool, error)
	CreateWorkflow(ctx context.Context, rec WorkflowRecord) error
	UpdateWorkflow(ctx context.Context, rec WorkflowRecord) error
	DeleteWorkflow(ctx context.Context, id string) error
	// ListScheduled returns active workflows with a cron expression.
	ListScheduled(ctx context.Context) ([]WorkflowRecord, error)
}

// RunLogStore records workflow executions.
type RunLogStore interface {
	CreateRun(ctx context.Context, rec RunRecord) error
	FinishRun(ctx context.Context, id, status, detail string, finishedAt time.Time) error
	ListRuns(ctx context.Context, workflowID string, limit int) ([]RunRecord, error)
}

// Store aggregates every persistence concern behind one value so the
// server can be wired with a single implementation.
type Store interface {
	AuthStore
	ConversationStore
	WorkflowStore
	RunLogStore
}
