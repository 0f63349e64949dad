// Package configure turns a natural-language instruction plus any known
// parameters into a parameter suggestion set for one node archetype.
//
// Each archetype family has its own configurator. Shared policy: start
// from a family-specific base confidence, add a bonus per satisfied
// required field, cap confidence at 0.4 and append a targeted follow-up
// question (in a fixed per-family order) for every missing required field.
// Configurators are deterministic and never return an error — an
// unrecognized archetype falls through to the generic family, which always
// produces a terminal "configured" result.
package configure

import (
	"strings"

	"github.com/dxtr-labs/v1.0-sub000/catalog"
)

// Result is the outcome of configuring one node from one user input.
type Result struct {
	Parameters    map[string]any `json:"parameters"`
	Explanation   string         `json:"explanation"`
	Confidence    float64        `json:"confidence"`
	NeedsMoreInfo bool           `json:"needs_more_info"`
	FollowUp      []string       `json:"follow_up,omitempty"`
}

// missingCap is the confidence ceiling whenever a required field is absent.
const missingCap = 0.4

// Node configures the given archetype from the raw instruction and the
// parameters accumulated so far. Current parameters satisfy required
// fields exactly like freshly extracted ones, so re-running a node with
// its own previous suggestions never lowers confidence or re-asks
// answered questions.
func Node(arch catalog.Archetype, input string, current map[string]any) Result {
	lower := strings.ToLower(input)
	switch family(arch.MachineType) {
	case familyHTTP:
		return configureHTTP(arch, lower, input, current)
	case familyMessage:
		return configureMessage(arch, lower, input, current)
	case familySet:
		return configureSet(lower, input, current)
	case familyCode:
		return configureCode(lower, input, current)
	case familyTable:
		return configureTable(arch, lower, input, current)
	case familyNoop:
		return configureNoop(arch)
	default:
		return configureGeneric(arch, input)
	}
}

type nodeFamily int

const (
	familyGeneric nodeFamily = iota
	familyHTTP
	familyMessage
	familySet
	familyCode
	familyNoop
	familyTable
)

func family(machineType string) nodeFamily {
	switch {
	case strings.Contains(machineType, "httpRequest"), strings.Contains(machineType, "webhook"):
		return familyHTTP
	case strings.Contains(machineType, "emailSend"), strings.Contains(machineType, "slack"),
		strings.Contains(machineType, "telegram"):
		return familyMessage
	case strings.HasSuffix(machineType, ".set"):
		return familySet
	case strings.HasSuffix(machineType, ".code"):
		return familyCode
	case strings.Contains(machineType, "noOp"), strings.Contains(machineType, "manualTrigger"),
		strings.Contains(machineType, "scheduleTrigger"):
		return familyNoop
	case strings.Contains(machineType, "airtable"), strings.Contains(machineType, "googleSheets"):
		return familyTable
	default:
		return familyGeneric
	}
}

// stringParam returns a non-empty string value from the current parameter
// set, if present.
func stringParam(current map[string]any, key string) (string, bool) {
	if current == nil {
		return "", false
	}
	v, ok := current[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}
