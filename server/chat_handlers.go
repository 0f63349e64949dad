package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	autoflow "github.com/dxtr-labs/v1.0-sub000"
	"github.com/dxtr-labs/v1.0-sub000/store"
)

// ChatRequest is the JSON body for POST /api/chat. Omitting
// ConversationID starts a new conversation.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Confirm        *bool  `json:"confirm,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	ConversationID string         `json:"conversation_id"`
	State          string         `json:"state"`
	Done           bool           `json:"done"`
	Reply          chatReply      `json:"reply"`
	Workflow       *workflowBrief `json:"workflow,omitempty"`
}

// chatReply tags the engine's reply with its kind so clients can switch
// without sniffing fields.
type chatReply struct {
	Type string         `json:"type"`
	Body autoflow.Reply `json:"body"`
}

// workflowBrief points at a workflow saved as a result of this turn.
type workflowBrief struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	RunID string `json:"run_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID string) {
	start := time.Now()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	sess, status, errCode := s.loadOrCreateSession(r.Context(), req.ConversationID, userID)
	if errCode != "" {
		writeError(w, status, errCode, "could not load conversation")
		return
	}

	// Serialize turns per conversation: the engine mutates the session.
	mu := s.conversationLock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	reply, err := s.engine.Advance(r.Context(), sess, autoflow.Turn{Text: req.Message, Confirm: req.Confirm})
	if err != nil {
		s.logger.Error("advancing conversation", "conversation_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not process the message")
		return
	}

	resp := ChatResponse{
		ConversationID: sess.ID,
		State:          string(sess.State),
		Done:           reply.Done(),
		Reply:          chatReply{Type: replyType(reply), Body: reply},
	}

	if executed, ok := reply.(*autoflow.ExecutedReply); ok && executed.Workflow != nil {
		if brief := s.saveExecutedWorkflow(r.Context(), sess, executed); brief != nil {
			resp.Workflow = brief
		}
	}

	if err := s.persistSession(r.Context(), sess); err != nil {
		s.logger.Error("persisting conversation", "conversation_id", sess.ID, "error", err)
	}

	if reply.Done() {
		s.releaseConversationLock(sess.ID)
	}

	if s.chatTurns != nil {
		s.chatTurns.Add(r.Context(), 1, metric.WithAttributes(attribute.String("state", string(sess.State))))
	}
	if s.chatDuration != nil {
		s.chatDuration.Record(r.Context(), time.Since(start).Seconds())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadOrCreateSession(ctx context.Context, conversationID, userID string) (*autoflow.Session, int, string) {
	if conversationID == "" {
		return autoflow.NewSession(userID), 0, ""
	}

	rec, ok, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		s.logger.Error("loading conversation", "conversation_id", conversationID, "error", err)
		return nil, http.StatusInternalServerError, "internal"
	}
	if !ok {
		return nil, http.StatusNotFound, "conversation_not_found"
	}
	if userID != "" && rec.UserID != "" && rec.UserID != userID {
		return nil, http.StatusNotFound, "conversation_not_found"
	}

	var sess autoflow.Session
	if err := json.Unmarshal(rec.Data, &sess); err != nil {
		s.logger.Error("decoding conversation snapshot", "conversation_id", conversationID, "error", err)
		return nil, http.StatusInternalServerError, "internal"
	}
	return &sess, 0, ""
}

func (s *Server) persistSession(ctx context.Context, sess *autoflow.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.store.SaveConversation(ctx, store.ConversationRecord{
		ID:     sess.ID,
		UserID: sess.UserID,
		State:  string(sess.State),
		Data:   data,
	})
}

// saveExecutedWorkflow persists the workflow a finished conversation
// produced, together with its first run log entry.
func (s *Server) saveExecutedWorkflow(ctx context.Context, sess *autoflow.Session, executed *autoflow.ExecutedReply) *workflowBrief {
	rec := store.WorkflowRecord{
		ID:         uuid.NewString(),
		UserID:     sess.UserID,
		Name:       executed.Workflow.Name,
		CategoryID: sess.CategoryID,
		Definition: executed.Workflow,
		Active:     true,
	}
	if err := s.store.CreateWorkflow(ctx, rec); err != nil {
		s.logger.Error("saving workflow", "conversation_id", sess.ID, "error", err)
		return nil
	}

	now := time.Now().UTC()
	run := store.RunRecord{
		ID:         uuid.NewString(),
		WorkflowID: rec.ID,
		Status:     "succeeded",
		Detail:     executed.RunID,
		StartedAt:  now,
		FinishedAt: now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.logger.Error("logging run", "workflow_id", rec.ID, "error", err)
	}

	return &workflowBrief{ID: rec.ID, Name: rec.Name, RunID: executed.RunID}
}

func replyType(reply autoflow.Reply) string {
	switch reply.(type) {
	case *autoflow.SearchingReply:
		return "searching"
	case *autoflow.CandidateListReply:
		return "candidates"
	case *autoflow.NodeQuestionReply:
		return "node_question"
	case *autoflow.ServiceSelectionReply:
		return "service_selection"
	case *autoflow.PreviewReply:
		return "preview"
	case *autoflow.ExecutedReply:
		return "executed"
	case *autoflow.CancelledReply:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ClassifyRequest is the JSON body for POST /api/classify.
type ClassifyRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request, _ string) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	candidates := s.classifier.Classify(r.Context(), req.Text)
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

// ConfigureRequest is the JSON body for POST /api/nodes/{archetype}/configure.
type ConfigureRequest struct {
	Text    string         `json:"text"`
	Current map[string]any `json:"current,omitempty"`
}

func (s *Server) handleConfigureNode(w http.ResponseWriter, r *http.Request, _ string) {
	var req ConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	result, err := s.engine.ConfigureNode(r.PathValue("archetype"), req.Text, req.Current)
	if err != nil {
		writeError(w, http.StatusNotFound, "archetype_not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleArchetypes(w http.ResponseWriter, _ *http.Request, _ string) {
	writeJSON(w, http.StatusOK, map[string]any{"archetypes": s.catalog.All()})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request, _ string) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.classifier.Categories()})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, userID string) {
	records, err := s.store.ListConversations(r.Context(), userID)
	if err != nil {
		s.logger.Error("listing conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": records})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, userID string) {
	rec, ok, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("loading conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load conversation")
		return
	}
	if !ok || (userID != "" && rec.UserID != "" && rec.UserID != userID) {
		writeError(w, http.StatusNotFound, "conversation_not_found", "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
