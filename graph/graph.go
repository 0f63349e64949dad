// Package graph defines the workflow graph artifact handed to the
// execution platform, plus structural validation over it.
package graph

import (
	"fmt"
	"strings"
)

// Diagnostic represents a validation error or warning.
type Diagnostic struct {
	Code     string `json:"code"`           // e.g. "WG-001"
	Severity string `json:"severity"`       // "error" or "warning"
	Message  string `json:"message"`        // human-readable description
	Path     string `json:"path,omitempty"` // path to the offending element
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Node is one configured step of a workflow graph.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"` // execution-platform node type id
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Position   [2]int         `json:"position"`
}

// Connection wires one node's output slot to another node's input slot.
type Connection struct {
	TargetNodeID string `json:"target_node_id"`
	OutputSlot   int    `json:"output_slot"`
	InputSlot    int    `json:"input_slot"`
}

// Workflow is the serializable output artifact of a finished conversation.
// Connections are keyed by source node id.
type Workflow struct {
	Name        string                  `json:"name"`
	Nodes       []Node                  `json:"nodes"`
	Connections map[string][]Connection `json:"connections,omitempty"`
}

// IsTrigger reports whether a node type is an entry (trigger) node type.
func IsTrigger(nodeType string) bool {
	lower := strings.ToLower(nodeType)
	return strings.Contains(lower, "trigger") || strings.HasSuffix(lower, ".webhook")
}

// Validate checks the structural invariants of a fully-configured workflow:
//   - WG-001: every connection references node ids present in Nodes
//   - WG-002: no node connects to itself
//   - WG-003: the graph is acyclic
//   - WG-004: exactly one trigger (entry) node
//   - WG-005: non-entry nodes should be reachable from the entry (warning)
//
// Partially-configured workflows may violate WG-004/WG-005 while the
// configuration loop is still running; callers validate only at preview.
func (w *Workflow) Validate() []Diagnostic {
	var diags []Diagnostic

	nodeIDs := make(map[string]bool, len(w.Nodes))
	for i, n := range w.Nodes {
		if nodeIDs[n.ID] {
			diags = append(diags, Diagnostic{
				Code:     "WG-001",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Duplicate node id %q", n.ID),
				Path:     fmt.Sprintf("nodes[%d].id", i),
			})
		}
		nodeIDs[n.ID] = true
	}

	for source, conns := range w.Connections {
		if !nodeIDs[source] {
			diags = append(diags, Diagnostic{
				Code:     "WG-001",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Connection source %q references unknown node", source),
				Path:     fmt.Sprintf("connections[%s]", source),
			})
		}
		for i, conn := range conns {
			if !nodeIDs[conn.TargetNodeID] {
				diags = append(diags, Diagnostic{
					Code:     "WG-001",
					Severity: SeverityError,
					Message:  fmt.Sprintf("Connection target %q references unknown node", conn.TargetNodeID),
					Path:     fmt.Sprintf("connections[%s][%d]", source, i),
				})
			}
			if conn.TargetNodeID == source {
				diags = append(diags, Diagnostic{
					Code:     "WG-002",
					Severity: SeverityError,
					Message:  fmt.Sprintf("Node %q connects to itself", source),
					Path:     fmt.Sprintf("connections[%s][%d]", source, i),
				})
			}
		}
	}

	if !HasErrors(diags) {
		if cycle := w.detectCycle(); cycle != "" {
			diags = append(diags, Diagnostic{
				Code:     "WG-003",
				Severity: SeverityError,
				Message:  "Workflow contains a cycle: " + cycle,
			})
		}
	}

	triggers := 0
	for _, n := range w.Nodes {
		if IsTrigger(n.Type) {
			triggers++
		}
	}
	if triggers != 1 {
		diags = append(diags, Diagnostic{
			Code:     "WG-004",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Workflow must have exactly one trigger node, found %d", triggers),
		})
	}

	diags = append(diags, w.reachabilityWarnings()...)
	return diags
}

// Entry returns the designated entry (trigger) node.
func (w *Workflow) Entry() (Node, bool) {
	for _, n := range w.Nodes {
		if IsTrigger(n.Type) {
			return n, true
		}
	}
	return Node{}, false
}

// detectCycle uses Kahn's algorithm. It returns a description of the
// nodes stuck in a cycle, or empty string if the graph is acyclic.
func (w *Workflow) detectCycle() string {
	inDegree := make(map[string]int, len(w.Nodes))
	for _, n := range w.Nodes {
		inDegree[n.ID] = 0
	}
	for _, conns := range w.Connections {
		for _, conn := range conns {
			inDegree[conn.TargetNodeID]++
		}
	}

	var queue []string
	for _, n := range w.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++
		for _, conn := range w.Connections[current] {
			inDegree[conn.TargetNodeID]--
			if inDegree[conn.TargetNodeID] == 0 {
				queue = append(queue, conn.TargetNodeID)
			}
		}
	}

	if visited < len(w.Nodes) {
		var cycleNodes []string
		for _, n := range w.Nodes {
			if inDegree[n.ID] > 0 {
				cycleNodes = append(cycleNodes, n.ID)
			}
		}
		return fmt.Sprintf("nodes involved: %v", cycleNodes)
	}
	return ""
}

func (w *Workflow) reachabilityWarnings() []Diagnostic {
	entry, ok := w.Entry()
	if !ok || len(w.Nodes) < 2 {
		return nil
	}

	reached := map[string]bool{entry.ID: true}
	queue := []string{entry.ID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, conn := range w.Connections[current] {
			if !reached[conn.TargetNodeID] {
				reached[conn.TargetNodeID] = true
				queue = append(queue, conn.TargetNodeID)
			}
		}
	}

	var diags []Diagnostic
	for i, n := range w.Nodes {
		if !reached[n.ID] {
			diags = append(diags, Diagnostic{
				Code:     "WG-005",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Node %q is not reachable from the trigger", n.ID),
				Path:     fmt.Sprintf("nodes[%d]", i),
			})
		}
	}
	return diags
}
