package configure

import (
	"fmt"
	"strings"
)

// configureCode produces a code-node stub from the instruction. The
// instruction itself is the required field: without a usable description
// of what the code should do there is nothing to generate.
func configureCode(lower, raw string, current map[string]any) Result {
	params := make(map[string]any)
	confidence := 0.6

	language := "javascript"
	if strings.Contains(lower, "python") {
		language = "python"
	}
	params["language"] = language

	description := strings.TrimSpace(raw)
	if description == "" {
		if d, ok := stringParam(current, "description"); ok {
			description = d
		}
	}

	if len(strings.Fields(description)) < 3 {
		return Result{
			Parameters:    params,
			Explanation:   "Need a description of what the code should do",
			Confidence:    missingCap,
			NeedsMoreInfo: true,
			FollowUp:      []string{"What should the code do with the incoming data?"},
		}
	}

	params["description"] = description
	params["jsCode"] = codeStub(language, description)
	confidence += 0.2

	return Result{
		Parameters:  params,
		Explanation: "Configured " + language + " code step",
		Confidence:  clamp(confidence),
	}
}

func codeStub(language, description string) string {
	if language == "python" {
		return fmt.Sprintf("# %s\nreturn items\n", description)
	}
	return fmt.Sprintf("// %s\nreturn items;\n", description)
}
