package autoflow

import (
	"github.com/dxtr-labs/v1.0-sub000/graph"
)

// Canvas layout constants for generated nodes.
const (
	layoutStartX = 250
	layoutStepX  = 300
	layoutY      = 300
)

// BuildWorkflow assembles the session's planned nodes and their
// accumulated parameters into an executable workflow graph. Nodes are
// chained linearly in template order and laid out left to right.
func BuildWorkflow(sess *Session) *graph.Workflow {
	wf := &graph.Workflow{
		Name:        sess.TemplateName,
		Nodes:       make([]graph.Node, 0, len(sess.Nodes)),
		Connections: make(map[string][]graph.Connection),
	}

	for i, planned := range sess.Nodes {
		params := make(map[string]any, len(sess.Completed[planned.ID]))
		for k, v := range sess.Completed[planned.ID] {
			params[k] = v
		}
		wf.Nodes = append(wf.Nodes, graph.Node{
			ID:         planned.ID,
			Type:       planned.Archetype.MachineType,
			Name:       planned.Name,
			Parameters: params,
			Position:   [2]int{layoutStartX + layoutStepX*i, layoutY},
		})
		if i > 0 {
			prev := sess.Nodes[i-1].ID
			wf.Connections[prev] = append(wf.Connections[prev], graph.Connection{
				TargetNodeID: planned.ID,
				OutputSlot:   0,
				InputSlot:    0,
			})
		}
	}
	return wf
}
