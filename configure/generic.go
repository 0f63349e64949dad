package configure

import "github.com/dxtr-labs/v1.0-sub000/catalog"

// configureNoop covers placeholder and trigger archetypes that need no
// user-supplied parameters.
func configureNoop(arch catalog.Archetype) Result {
	return Result{
		Parameters:  map[string]any{},
		Explanation: arch.DisplayName + " needs no configuration",
		Confidence:  0.8,
	}
}

// configureGeneric is the fallback family for unrecognized archetypes.
// It never asks follow-up questions: it exists so the conversation always
// has a terminal response for node types it does not understand.
func configureGeneric(arch catalog.Archetype, input string) Result {
	params := map[string]any{"configured": true}
	if input != "" {
		params["instruction"] = input
	}
	return Result{
		Parameters:  params,
		Explanation: "Applied a basic configuration for " + arch.DisplayName,
		Confidence:  0.5,
	}
}
