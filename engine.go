package autoflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dxtr-labs/v1.0-sub000/catalog"
	"github.com/dxtr-labs/v1.0-sub000/classify"
	"github.com/dxtr-labs/v1.0-sub000/configure"
	"github.com/dxtr-labs/v1.0-sub000/enhance"
	"github.com/dxtr-labs/v1.0-sub000/graph"
)

// ErrNilSession is returned when Advance is called without a session.
var ErrNilSession = errors.New("session is required")

// maxCandidates limits how many ranked candidates are shown per turn.
const maxCandidates = 5

// defaultEnhanceTimeout bounds the optional AI-enhancement call. The
// rule-based result is always computed first and used unconditionally if
// the collaborator does not return in time.
const defaultEnhanceTimeout = 5 * time.Second

// Executor hands a confirmed workflow to the downstream execution
// platform and returns its run id. Persistence of execution logs belongs
// to the caller.
type Executor interface {
	Execute(ctx context.Context, wf *graph.Workflow) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, wf *graph.Workflow) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, wf *graph.Workflow) (string, error) {
	return f(ctx, wf)
}

// ServiceOption is one selectable AI content service.
type ServiceOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Config configures an Engine.
type Config struct {
	Catalog        *catalog.Catalog
	Classifier     *classify.Classifier
	Enhancer       enhance.Enhancer // optional
	EnhanceTimeout time.Duration
	Executor       Executor // optional; without one, Executed replies carry no run id
	Services       []ServiceOption
	Logger         *slog.Logger
}

// Engine drives the conversation state machine. It holds no
// per-conversation state itself; all memory lives in the Session, which
// callers must not mutate concurrently.
type Engine struct {
	catalog        *catalog.Catalog
	classifier     *classify.Classifier
	enhancer       enhance.Enhancer
	enhanceTimeout time.Duration
	executor       Executor
	services       []ServiceOption
	logger         *slog.Logger
	tracer         trace.Tracer
}

// NewEngine creates an engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.EnhanceTimeout
	if timeout <= 0 {
		timeout = defaultEnhanceTimeout
	}
	return &Engine{
		catalog:        cfg.Catalog,
		classifier:     cfg.Classifier,
		enhancer:       cfg.Enhancer,
		enhanceTimeout: timeout,
		executor:       cfg.Executor,
		services:       cfg.Services,
		logger:         logger,
		tracer:         otel.Tracer("autoflow/engine"),
	}
}

// Classify exposes one-shot classification without a conversation.
func (e *Engine) Classify(ctx context.Context, text string) []classify.Candidate {
	return e.classifier.Classify(ctx, text)
}

// ConfigureNode exposes one-shot node configuration without a conversation.
func (e *Engine) ConfigureNode(archetypeID, text string, current map[string]any) (configure.Result, error) {
	arch, ok := e.catalog.ByID(archetypeID)
	if !ok {
		return configure.Result{}, fmt.Errorf("unknown archetype %q", archetypeID)
	}
	return configure.Node(arch, text, current), nil
}

// Advance processes one user turn against the session's current state and
// returns the reply to surface. The session is mutated in place; callers
// must serialize turns per session. Malformed or empty turns never fail —
// the worst case is a re-prompt of the pending question.
func (e *Engine) Advance(ctx context.Context, sess *Session, turn Turn) (Reply, error) {
	if sess == nil {
		return nil, ErrNilSession
	}

	ctx, span := e.tracer.Start(ctx, "conversation.Advance",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.String("session.state", string(sess.State)),
		))
	defer span.End()

	text := strings.TrimSpace(turn.Text)
	if text != "" {
		sess.History = append(sess.History, text)
	}
	sess.UpdatedAt = time.Now().UTC()

	reply := e.dispatch(ctx, sess, text, turn)
	span.SetAttributes(attribute.String("session.next_state", string(sess.State)))
	return reply, nil
}

func (e *Engine) dispatch(ctx context.Context, sess *Session, text string, turn Turn) Reply {
	switch sess.State {
	case StateExecuted:
		return &ExecutedReply{
			RunID:   sess.LastRunID,
			Summary: "This workflow was already created. Start a new conversation to build another.",
		}
	case StateCancelled:
		return &CancelledReply{Reason: "This conversation was cancelled. Start a new one to continue."}
	case StateAwaitingService:
		return e.handleServiceSelection(ctx, sess, text, turn)
	case StateCandidateSelected:
		return e.handleCandidateSelected(ctx, sess, text, turn)
	case StateConfiguringNode:
		return e.handleConfiguring(ctx, sess, text)
	case StateAwaitingPreview, StateAwaitingEmailEdit:
		return e.handlePreview(ctx, sess, text, turn)
	default:
		return e.handleSearching(ctx, sess, text)
	}
}

// --- Searching -----------------------------------------------------------

func (e *Engine) handleSearching(ctx context.Context, sess *Session, text string) Reply {
	if text == "" {
		if len(sess.Candidates) > 0 {
			return &CandidateListReply{
				Candidates: sess.Candidates,
				Prompt:     "Reply with the number of the workflow you want to build.",
			}
		}
		return &SearchingReply{Prompt: "Describe the automation you want to build."}
	}

	if sess.ServiceID == "" && e.needsServiceChoice(text) {
		return e.moveToServiceSelection(sess, StateSearching, text)
	}

	if idx, err := strconv.Atoi(text); err == nil && len(sess.Candidates) > 0 {
		return e.selectCandidate(sess, idx)
	}

	serviceID, query := splitServicePrefix(text)
	if serviceID != "" {
		sess.ServiceID = serviceID
	}

	candidates := e.classifier.Classify(ctx, query)
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	sess.Candidates = candidates

	return &CandidateListReply{
		Candidates: candidates,
		Prompt:     "Reply with the number of the workflow you want to build, or describe it differently.",
	}
}

// selectCandidate handles a numeric selection against the shown list.
// Out-of-range selections re-prompt and leave the state unchanged.
func (e *Engine) selectCandidate(sess *Session, idx int) Reply {
	if idx < 1 || idx > len(sess.Candidates) {
		return &CandidateListReply{
			Candidates: sess.Candidates,
			Prompt:     fmt.Sprintf("Please pick a number between 1 and %d.", len(sess.Candidates)),
		}
	}

	cand := sess.Candidates[idx-1]
	sess.CategoryID = cand.CategoryID
	sess.TemplateName = cand.TemplateName
	sess.Seed = cand.Parameters
	sess.State = StateCandidateSelected

	return &CandidateListReply{
		Candidates: []classify.Candidate{cand},
		Prompt:     fmt.Sprintf("Build %q? (yes/no)", cand.TemplateName),
	}
}

// --- Candidate confirmation ----------------------------------------------

func (e *Engine) handleCandidateSelected(ctx context.Context, sess *Session, text string, turn Turn) Reply {
	confirmed := parseConfirm(text, turn.Confirm)
	switch {
	case confirmed == nil && text == "":
		return &CandidateListReply{
			Candidates: sess.Candidates,
			Prompt:     fmt.Sprintf("Build %q? (yes/no)", sess.TemplateName),
		}
	case confirmed == nil:
		// Free text here is a fresh description, not an answer.
		sess.State = StateSearching
		return e.handleSearching(ctx, sess, text)
	case !*confirmed:
		sess.State = StateSearching
		sess.CategoryID = ""
		sess.TemplateName = ""
		return &CandidateListReply{
			Candidates: sess.Candidates,
			Prompt:     "Okay — pick another workflow or describe something else.",
		}
	}

	if err := e.loadTemplateNodes(sess); err != nil {
		e.logger.Warn("loading template nodes failed", "category", sess.CategoryID, "error", err)
		sess.State = StateSearching
		return &SearchingReply{Prompt: "That workflow is unavailable. Describe the automation you want to build."}
	}

	sess.State = StateConfiguringNode
	sess.CurrentNode = 0
	return e.driveConfiguration(ctx, sess)
}

// loadTemplateNodes expands the selected category's template into planned
// nodes bound to catalog archetypes.
func (e *Engine) loadTemplateNodes(sess *Session) error {
	category, ok := e.classifier.CategoryByID(sess.CategoryID)
	if !ok {
		return fmt.Errorf("unknown category %q", sess.CategoryID)
	}
	if len(category.Template.Nodes) == 0 {
		return fmt.Errorf("category %q has an empty template", sess.CategoryID)
	}

	nodes := make([]PlannedNode, 0, len(category.Template.Nodes))
	for i, tn := range category.Template.Nodes {
		arch, ok := e.catalog.ByID(tn.ArchetypeID)
		if !ok {
			e.logger.Warn("template references unknown archetype, skipping", "archetype", tn.ArchetypeID)
			continue
		}
		nodes = append(nodes, PlannedNode{
			ID:        fmt.Sprintf("%s_%d", tn.ArchetypeID, i),
			Name:      tn.Name,
			Archetype: arch,
		})
	}
	if len(nodes) == 0 {
		return fmt.Errorf("category %q resolved to no nodes", sess.CategoryID)
	}
	sess.Nodes = nodes
	return nil
}

// --- Node configuration loop ---------------------------------------------

func (e *Engine) handleConfiguring(ctx context.Context, sess *Session, text string) Reply {
	// A reloaded snapshot can claim this state without planned nodes (or
	// with a stale index). Never fatal: degrade to a fresh search.
	if sess.CurrentNode < 0 || sess.CurrentNode >= len(sess.Nodes) {
		e.logger.Warn("conversation has no node to configure; restarting search",
			"session", sess.ID, "current_node", sess.CurrentNode, "nodes", len(sess.Nodes))
		sess.State = StateSearching
		sess.CurrentNode = 0
		sess.PendingQuestions = nil
		return e.handleSearching(ctx, sess, text)
	}

	if text == "" {
		// No new information: re-send the pending follow-up questions.
		return e.currentNodeQuestions(sess)
	}

	if sess.ServiceID == "" && e.needsServiceChoice(text) {
		return e.moveToServiceSelection(sess, StateConfiguringNode, text)
	}

	serviceID, instruction := splitServicePrefix(text)
	if serviceID != "" {
		sess.ServiceID = serviceID
	}

	node := sess.Nodes[sess.CurrentNode]
	current := e.currentParams(sess, node)
	result := configure.Node(node.Archetype, instruction, current)
	if e.enhancer != nil {
		e.applyEnhancement(ctx, sess, node, instruction, current, &result)
	}

	e.mergeNodeResult(sess, node, result)

	if result.NeedsMoreInfo {
		sess.PendingQuestions = result.FollowUp
		return &NodeQuestionReply{
			NodeID:      node.ID,
			NodeName:    node.Name,
			Questions:   result.FollowUp,
			Explanation: result.Explanation,
			Confidence:  result.Confidence,
		}
	}

	sess.PendingQuestions = nil
	sess.CurrentNode++
	return e.driveConfiguration(ctx, sess)
}

// driveConfiguration walks forward from the current node, auto-completing
// nodes that are satisfied by seeded/accumulated parameters alone, and
// stops at the first node that still needs user input. When every node is
// configured it assembles the preview.
func (e *Engine) driveConfiguration(ctx context.Context, sess *Session) Reply {
	for sess.CurrentNode < len(sess.Nodes) {
		node := sess.Nodes[sess.CurrentNode]
		result := configure.Node(node.Archetype, "", e.currentParams(sess, node))
		e.mergeNodeResult(sess, node, result)

		if result.NeedsMoreInfo {
			sess.PendingQuestions = result.FollowUp
			return &NodeQuestionReply{
				NodeID:      node.ID,
				NodeName:    node.Name,
				Questions:   result.FollowUp,
				Explanation: "Configuring " + node.Name,
				Confidence:  result.Confidence,
			}
		}
		sess.PendingQuestions = nil
		sess.CurrentNode++
	}

	sess.State = StateAwaitingPreview
	return e.previewReply(sess, "Here is the workflow I will create. Proceed? (yes/no)")
}

// currentNodeQuestions re-surfaces the pending questions for the node
// being configured, computing them if the session has none recorded.
func (e *Engine) currentNodeQuestions(sess *Session) Reply {
	node := sess.Nodes[sess.CurrentNode]
	questions := sess.PendingQuestions
	if len(questions) == 0 {
		result := configure.Node(node.Archetype, "", e.currentParams(sess, node))
		questions = result.FollowUp
	}
	return &NodeQuestionReply{
		NodeID:    node.ID,
		NodeName:  node.Name,
		Questions: questions,
		Confidence: func() float64 {
			if c, ok := sess.NodeConfidence[node.ID]; ok {
				return c
			}
			return 0
		}(),
	}
}

// currentParams merges the candidate seed under the node's accumulated
// parameters. Accumulated values win.
func (e *Engine) currentParams(sess *Session, node PlannedNode) map[string]any {
	merged := make(map[string]any, len(sess.Seed)+len(sess.Completed[node.ID]))
	for k, v := range sess.Seed {
		merged[k] = v
	}
	for k, v := range sess.Completed[node.ID] {
		merged[k] = v
	}
	return merged
}

func (e *Engine) mergeNodeResult(sess *Session, node PlannedNode, result configure.Result) {
	if sess.Completed == nil {
		sess.Completed = make(map[string]map[string]any)
	}
	params := sess.Completed[node.ID]
	if params == nil {
		params = make(map[string]any)
		sess.Completed[node.ID] = params
	}
	for k, v := range result.Parameters {
		params[k] = v
	}
	if sess.NodeConfidence == nil {
		sess.NodeConfidence = make(map[string]float64)
	}
	sess.NodeConfidence[node.ID] = result.Confidence
}

// applyEnhancement runs the optional AI collaborator with a bounded
// timeout. It is strictly additive: only fills parameters the rule-based
// pass left absent and may raise but never lower confidence. Any failure
// degrades silently to the rule-based result.
func (e *Engine) applyEnhancement(ctx context.Context, sess *Session, node PlannedNode, instruction string, current map[string]any, result *configure.Result) {
	ctx, cancel := context.WithTimeout(ctx, e.enhanceTimeout)
	defer cancel()

	res, err := e.enhancer.Enhance(ctx, enhance.Request{
		ArchetypeID: node.Archetype.ID,
		MachineType: node.Archetype.MachineType,
		Instruction: instruction,
		Current:     current,
		Service:     sess.ServiceID,
	})
	if err != nil {
		e.logger.Warn("enhancement failed; using rule-based result",
			"node", node.ID, "error", err)
		return
	}

	for k, v := range res.Parameters {
		if _, exists := result.Parameters[k]; !exists {
			result.Parameters[k] = v
		}
	}
	if !result.NeedsMoreInfo && res.Confidence > result.Confidence {
		result.Confidence = res.Confidence
	}
}

// --- Service selection ----------------------------------------------------

// needsServiceChoice reports whether the turn asks for AI-generated
// content while multiple services are configured and none was chosen yet.
func (e *Engine) needsServiceChoice(text string) bool {
	if len(e.services) == 0 || strings.HasPrefix(text, "service:") {
		return false
	}
	lower := strings.ToLower(text)
	for _, signal := range []string{"ai generated", "ai-generated", "generate with ai", "using ai", "with ai"} {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}

func (e *Engine) moveToServiceSelection(sess *Session, returnState State, text string) Reply {
	sess.State = StateAwaitingService
	sess.ReturnState = returnState
	sess.PendingServiceText = text
	return &ServiceSelectionReply{
		Options: e.services,
		Prompt:  "Which AI service should generate the content? Reply with its number.",
	}
}

// handleServiceSelection resolves the choice and replays the original
// text, prefixed with the chosen service, through the requesting state.
func (e *Engine) handleServiceSelection(ctx context.Context, sess *Session, text string, turn Turn) Reply {
	chosen := ""
	if idx, err := strconv.Atoi(text); err == nil && idx >= 1 && idx <= len(e.services) {
		chosen = e.services[idx-1].ID
	} else {
		for _, opt := range e.services {
			if strings.EqualFold(text, opt.ID) {
				chosen = opt.ID
				break
			}
		}
	}
	if chosen == "" {
		return &ServiceSelectionReply{
			Options: e.services,
			Prompt:  fmt.Sprintf("Please pick a number between 1 and %d.", len(e.services)),
		}
	}

	replay := "service:" + chosen + " " + sess.PendingServiceText
	sess.State = sess.ReturnState
	sess.PendingServiceText = ""
	sess.ReturnState = ""
	return e.dispatch(ctx, sess, strings.TrimSpace(replay), turn)
}

// --- Preview / confirmation ----------------------------------------------

func (e *Engine) handlePreview(ctx context.Context, sess *Session, text string, turn Turn) Reply {
	confirmed := parseConfirm(text, turn.Confirm)

	switch {
	case confirmed != nil && *confirmed:
		return e.execute(ctx, sess)
	case confirmed != nil:
		sess.State = StateCancelled
		return &CancelledReply{Reason: "Workflow creation cancelled."}
	case text == "":
		return e.previewReply(sess, "Ready to create this workflow? (yes/no)")
	}

	// Free text during preview: email workflows accept edits in place.
	if node, ok := e.emailNode(sess); ok {
		sess.State = StateAwaitingEmailEdit
		result := configure.Node(node.Archetype, text, e.currentParams(sess, node))
		e.mergeNodeResult(sess, node, result)
		return e.previewReply(sess, "Updated the email. Create this workflow? (yes/no)")
	}
	return e.previewReply(sess, "Please answer yes or no.")
}

func (e *Engine) emailNode(sess *Session) (PlannedNode, bool) {
	for _, node := range sess.Nodes {
		if strings.Contains(node.Archetype.MachineType, "emailSend") {
			return node, true
		}
	}
	return PlannedNode{}, false
}

func (e *Engine) execute(ctx context.Context, sess *Session) Reply {
	wf := BuildWorkflow(sess)
	if diags := wf.Validate(); graph.HasErrors(diags) {
		e.logger.Warn("assembled workflow failed validation", "session", sess.ID, "diagnostics", diags)
		return e.previewReply(sess, "The workflow has structural problems and cannot run yet. Create it anyway later, or cancel? (yes/no)")
	}

	runID := ""
	if e.executor != nil {
		id, err := e.executor.Execute(ctx, wf)
		if err != nil {
			e.logger.Warn("execution handoff failed", "session", sess.ID, "error", err)
			return e.previewReply(sess, "Creating the workflow failed: "+err.Error()+". Try again? (yes/no)")
		}
		runID = id
	}

	sess.State = StateExecuted
	sess.LastRunID = runID
	return &ExecutedReply{
		RunID:    runID,
		Workflow: wf,
		Summary:  fmt.Sprintf("Created workflow %q with %d steps.", wf.Name, len(wf.Nodes)),
	}
}

func (e *Engine) previewReply(sess *Session, prompt string) *PreviewReply {
	wf := BuildWorkflow(sess)
	return &PreviewReply{
		Workflow:    wf,
		Explanation: fmt.Sprintf("%d-step %s workflow", len(wf.Nodes), sess.TemplateName),
		Confidence:  sess.overallConfidence(),
		Prompt:      prompt,
	}
}

// overallConfidence is the lowest per-node configuration confidence: a
// preview is only as trustworthy as its weakest node.
func (s *Session) overallConfidence() float64 {
	lowest := 1.0
	found := false
	for _, node := range s.Nodes {
		if c, ok := s.NodeConfidence[node.ID]; ok {
			found = true
			if c < lowest {
				lowest = c
			}
		}
	}
	if !found {
		return 0
	}
	return lowest
}

// --- helpers --------------------------------------------------------------

var (
	yesWords = []string{"yes", "y", "yep", "confirm", "ok", "okay", "sure", "create", "create it", "go ahead", "proceed"}
	noWords  = []string{"no", "n", "nope", "cancel", "stop", "abort", "nevermind"}
)

// parseConfirm resolves an explicit confirm flag or a yes/no text into a
// tri-state answer. Nil means "neither".
func parseConfirm(text string, explicit *bool) *bool {
	if explicit != nil {
		return explicit
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, w := range yesWords {
		if lower == w {
			v := true
			return &v
		}
	}
	for _, w := range noWords {
		if lower == w {
			v := false
			return &v
		}
	}
	return nil
}

// splitServicePrefix splits a "service:<id> <text>" instruction into the
// service id and the remaining text.
func splitServicePrefix(text string) (string, string) {
	if !strings.HasPrefix(text, "service:") {
		return "", text
	}
	rest := strings.TrimPrefix(text, "service:")
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) == 1 {
		return strings.TrimSpace(parts[0]), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
