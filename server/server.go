// Package server exposes the conversational workflow builder over HTTP:
// chat turns, one-shot classification and configuration, saved workflow
// CRUD, run logs, and token-based authentication.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	autoflow "github.com/dxtr-labs/v1.0-sub000"
	"github.com/dxtr-labs/v1.0-sub000/catalog"
	"github.com/dxtr-labs/v1.0-sub000/classify"
	"github.com/dxtr-labs/v1.0-sub000/store"
)

// Config configures a Server instance.
type Config struct {
	Engine     *autoflow.Engine
	Catalog    *catalog.Catalog
	Classifier *classify.Classifier
	Store      store.Store
	Runner     *RunService
	CORSOrigin string
	MaxBody    int64
	Logger     *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	engine     *autoflow.Engine
	catalog    *catalog.Catalog
	classifier *classify.Classifier
	store      store.Store
	runner     *RunService
	corsOrigin string
	maxBody    int64
	logger     *slog.Logger

	// Per-conversation locks: the engine requires serialized turns.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	chatTurns    metric.Int64Counter
	chatDuration metric.Float64Histogram
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}

	meter := otel.Meter("autoflow/server")
	chatTurns, err := meter.Int64Counter("autoflow.chat.turns",
		metric.WithDescription("Number of chat turns processed"))
	if err != nil {
		logger.Warn("creating chat turn counter", "error", err)
	}
	chatDuration, err := meter.Float64Histogram("autoflow.chat.duration",
		metric.WithDescription("Chat turn processing duration"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("creating chat duration histogram", "error", err)
	}

	return &Server{
		engine:       cfg.Engine,
		catalog:      cfg.Catalog,
		classifier:   cfg.Classifier,
		store:        cfg.Store,
		runner:       cfg.Runner,
		corsOrigin:   corsOrigin,
		maxBody:      maxBody,
		logger:       logger,
		locks:        make(map[string]*sync.Mutex),
		chatTurns:    chatTurns,
		chatDuration: chatDuration,
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)
	return handler
}

// RegisterRoutes mounts API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)

	mux.HandleFunc("POST /api/chat", s.withAuth(s.handleChat))
	mux.HandleFunc("POST /api/classify", s.withAuth(s.handleClassify))
	mux.HandleFunc("POST /api/nodes/{archetype}/configure", s.withAuth(s.handleConfigureNode))
	mux.HandleFunc("GET /api/archetypes", s.withAuth(s.handleArchetypes))
	mux.HandleFunc("GET /api/categories", s.withAuth(s.handleCategories))

	mux.HandleFunc("GET /api/conversations", s.withAuth(s.handleListConversations))
	mux.HandleFunc("GET /api/conversations/{id}", s.withAuth(s.handleGetConversation))

	mux.HandleFunc("GET /api/workflows", s.withAuth(s.handleListWorkflows))
	mux.HandleFunc("GET /api/workflows/{id}", s.withAuth(s.handleGetWorkflow))
	mux.HandleFunc("PUT /api/workflows/{id}", s.withAuth(s.handleUpdateWorkflow))
	mux.HandleFunc("DELETE /api/workflows/{id}", s.withAuth(s.handleDeleteWorkflow))
	mux.HandleFunc("POST /api/workflows/{id}/run", s.withAuth(s.handleRunWorkflow))
	mux.HandleFunc("GET /api/workflows/{id}/runs", s.withAuth(s.handleListRuns))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// conversationLock returns the mutex serializing turns for one conversation.
func (s *Server) conversationLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

// releaseConversationLock drops a conversation's lock entry. Called once
// the conversation reaches a terminal state so the lock map does not grow
// with every finished conversation; terminal turns are idempotent, so a
// racing turn that kept the old mutex is harmless.
func (s *Server) releaseConversationLock(id string) {
	s.locksMu.Lock()
	delete(s.locks, id)
	s.locksMu.Unlock()
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the standard error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := apiError{
		Error: apiErrorBody{
			Code:    code,
			Message: message,
		},
	}
	if len(details) > 0 {
		body.Error.Details = details
	}
	writeJSON(w, status, body)
}
