package configure

import (
	"strings"

	"github.com/dxtr-labs/v1.0-sub000/catalog"
	"github.com/dxtr-labs/v1.0-sub000/extract"
)

// tableOperations maps instruction verbs to tabular operations, checked
// in order.
var tableOperations = []struct {
	Operation string
	Verbs     []string
}{
	{"read", []string{"read", "get", "fetch", "list", "lookup"}},
	{"update", []string{"update", "modify", "change"}},
	{"append", []string{"append", "add", "insert", "create", "log", "save", "store"}},
}

// configureTable handles Airtable/Sheets-style nodes. The target table or
// sheet reference is the required field.
func configureTable(arch catalog.Archetype, lower, raw string, current map[string]any) Result {
	params := make(map[string]any)
	confidence := 0.6
	var followUp []string

	operation := "append"
	for _, op := range tableOperations {
		found := false
		for _, verb := range op.Verbs {
			if strings.Contains(lower, verb) {
				operation = op.Operation
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	params["operation"] = operation

	table, okTable := extract.After(raw, "table", "sheet", "base", "into", "in ")
	if okTable {
		table = strings.Trim(table, `"'`)
	}
	if !okTable {
		table, okTable = stringParam(current, "table")
	}
	if okTable {
		params["table"] = table
		confidence += 0.2
	} else {
		followUp = append(followUp, "Which table or sheet should this use?")
	}

	needsMore := len(followUp) > 0
	if needsMore {
		confidence = missingCap
	}

	return Result{
		Parameters:    params,
		Explanation:   "Configured " + arch.DisplayName + " (" + operation + ")",
		Confidence:    clamp(confidence),
		NeedsMoreInfo: needsMore,
		FollowUp:      followUp,
	}
}
