package autoflow

import (
	"github.com/dxtr-labs/v1.0-sub000/classify"
	"github.com/dxtr-labs/v1.0-sub000/graph"
)

// Reply is the closed union of conversation outputs. Exactly one concrete
// reply type is returned per turn; callers switch on the type instead of
// sniffing optional fields.
type Reply interface {
	// Done reports whether the conversation has reached a terminal state.
	Done() bool
	isReply()
}

// SearchingReply prompts the user to describe the automation they want.
type SearchingReply struct {
	Prompt string `json:"prompt"`
}

// CandidateListReply presents ranked workflow candidates for selection.
type CandidateListReply struct {
	Candidates []classify.Candidate `json:"candidates"`
	Prompt     string               `json:"prompt"`
}

// NodeQuestionReply asks follow-up questions for the node being configured.
type NodeQuestionReply struct {
	NodeID      string   `json:"node_id"`
	NodeName    string   `json:"node_name"`
	Questions   []string `json:"questions"`
	Explanation string   `json:"explanation,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// ServiceSelectionReply asks which AI service should generate content.
type ServiceSelectionReply struct {
	Options []ServiceOption `json:"options"`
	Prompt  string          `json:"prompt"`
}

// PreviewReply presents the assembled workflow for confirmation.
type PreviewReply struct {
	Workflow    *graph.Workflow `json:"workflow"`
	Explanation string          `json:"explanation,omitempty"`
	Confidence  float64         `json:"confidence"`
	Prompt      string          `json:"prompt"`
}

// ExecutedReply reports a confirmed and handed-off workflow.
type ExecutedReply struct {
	RunID    string          `json:"run_id,omitempty"`
	Workflow *graph.Workflow `json:"workflow,omitempty"`
	Summary  string          `json:"summary"`
}

// CancelledReply reports a cancelled conversation.
type CancelledReply struct {
	Reason string `json:"reason"`
}

func (*SearchingReply) isReply()        {}
func (*CandidateListReply) isReply()    {}
func (*NodeQuestionReply) isReply()     {}
func (*ServiceSelectionReply) isReply() {}
func (*PreviewReply) isReply()          {}
func (*ExecutedReply) isReply()         {}
func (*CancelledReply) isReply()        {}

func (*SearchingReply) Done() bool        { return false }
func (*CandidateListReply) Done() bool    { return false }
func (*NodeQuestionReply) Done() bool     { return false }
func (*ServiceSelectionReply) Done() bool { return false }
func (*PreviewReply) Done() bool          { return false }
func (*ExecutedReply) Done() bool         { return true }
func (*CancelledReply) Done() bool        { return true }
