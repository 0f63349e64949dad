package configure

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	assignEqRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_ ]*?)\s*=\s*("[^"]*"|[^\s,]+)`)
	assignToRe = regexp.MustCompile(`(?i)\bset\s+([a-z_][a-z0-9_ ]*?)\s+to\s+([^,.\n]+)`)
)

// Assignment is one typed variable assignment found in the instruction.
type Assignment struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// configureSet finds "name = value" and "set X to Y" assignments and
// classifies each value into a string/number/boolean bucket by attempting
// a numeric parse, then a boolean-literal parse, else string.
func configureSet(lower, raw string, current map[string]any) Result {
	strs, nums, bools := parseAssignments(raw)

	// No new assignments in this turn: fall back to assignments already
	// accumulated for the node.
	if len(strs)+len(nums)+len(bools) == 0 {
		if existing := assignmentBuckets(current["values"]); bucketCount(existing) > 0 {
			return Result{
				Parameters:  map[string]any{"values": existing},
				Explanation: explainAssignments(bucketCount(existing)),
				Confidence:  0.8,
			}
		}
		return Result{
			Parameters:    map[string]any{},
			Explanation:   "No variable assignments found",
			Confidence:    missingCap,
			NeedsMoreInfo: true,
			FollowUp:      []string{"What variable should be set, and to what value?"},
		}
	}

	values := map[string][]Assignment{}
	if len(strs) > 0 {
		values["string"] = strs
	}
	if len(nums) > 0 {
		values["number"] = nums
	}
	if len(bools) > 0 {
		values["boolean"] = bools
	}

	total := len(strs) + len(nums) + len(bools)
	confidence := 0.8 + 0.05*float64(total)

	return Result{
		Parameters:  map[string]any{"values": values},
		Explanation: explainAssignments(total),
		Confidence:  clamp(confidence),
	}
}

func parseAssignments(raw string) (strs, nums, bools []Assignment) {
	add := func(name, rawValue string) {
		name = strings.TrimSpace(name)
		rawValue = strings.TrimSpace(strings.Trim(strings.TrimSpace(rawValue), `"`))
		if name == "" || rawValue == "" {
			return
		}
		if n, err := strconv.ParseFloat(rawValue, 64); err == nil {
			nums = append(nums, Assignment{Name: name, Value: n})
			return
		}
		switch strings.ToLower(rawValue) {
		case "true", "false":
			bools = append(bools, Assignment{Name: name, Value: strings.ToLower(rawValue) == "true"})
			return
		}
		strs = append(strs, Assignment{Name: name, Value: rawValue})
	}

	seen := map[string]bool{}
	for _, m := range assignToRe.FindAllStringSubmatch(raw, -1) {
		add(m[1], m[2])
		seen[strings.TrimSpace(m[1])] = true
	}
	for _, m := range assignEqRe.FindAllStringSubmatch(raw, -1) {
		if seen[strings.TrimSpace(m[1])] {
			continue
		}
		add(m[1], m[2])
	}
	return strs, nums, bools
}

// assignmentBuckets recovers typed assignment buckets from a previous
// result. Values that round-tripped through JSON persistence arrive as
// map[string]any and are normalized back.
func assignmentBuckets(v any) map[string][]Assignment {
	switch existing := v.(type) {
	case map[string][]Assignment:
		return existing
	case map[string]any:
		out := map[string][]Assignment{}
		for bucket, rawList := range existing {
			list, ok := rawList.([]any)
			if !ok {
				continue
			}
			for _, item := range list {
				entry, ok := item.(map[string]any)
				if !ok {
					continue
				}
				name, _ := entry["name"].(string)
				if name == "" {
					continue
				}
				out[bucket] = append(out[bucket], Assignment{Name: name, Value: entry["value"]})
			}
		}
		return out
	}
	return nil
}

func bucketCount(values map[string][]Assignment) int {
	n := 0
	for _, bucket := range values {
		n += len(bucket)
	}
	return n
}

func explainAssignments(n int) string {
	if n == 1 {
		return "Configured 1 variable assignment"
	}
	return fmt.Sprintf("Configured %d variable assignments", n)
}
