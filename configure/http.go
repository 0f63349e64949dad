package configure

import (
	"regexp"
	"strings"

	"github.com/dxtr-labs/v1.0-sub000/catalog"
	"github.com/dxtr-labs/v1.0-sub000/extract"
)

var (
	// Bare hosts like "api.example.com/users". Excludes strings containing
	// "@" so email addresses never masquerade as hosts.
	bareHostRe = regexp.MustCompile(`\b[a-z0-9][a-z0-9\-]*(\.[a-z0-9\-]+)+(/[^\s,]*)?`)

	queryPairRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)=([^\s&,]+)`)
)

// methodVerbs maps instruction verbs to HTTP methods, checked in order so
// inference is deterministic. GET is only the last-resort default.
var methodVerbs = []struct {
	Method string
	Verbs  []string
}{
	{"DELETE", []string{"delete", "remove"}},
	{"PUT", []string{"put", "update"}},
	{"POST", []string{"post", "send", "create", "submit"}},
	{"GET", []string{"get", "fetch", "retrieve", "read", "download"}},
}

func configureHTTP(arch catalog.Archetype, lower, raw string, current map[string]any) Result {
	// The webhook trigger is part of the HTTP family but provides an
	// endpoint instead of calling one: it needs a path, never a URL.
	if strings.HasSuffix(arch.MachineType, ".webhook") {
		return configureWebhookTrigger(raw, current)
	}
	return configureHTTPRequest(lower, raw, current)
}

func configureWebhookTrigger(raw string, current map[string]any) Result {
	path, ok := extract.After(raw, "path:", "at /")
	if !ok {
		path, ok = stringParam(current, "path")
	}
	if !ok {
		path = "incoming"
	}
	path = strings.Trim(path, "/ ")

	return Result{
		Parameters:  map[string]any{"path": path, "httpMethod": "POST"},
		Explanation: "Webhook will listen at /" + path,
		Confidence:  0.75,
	}
}

func configureHTTPRequest(lower, raw string, current map[string]any) Result {
	params := make(map[string]any)
	confidence := 0.7
	var followUp []string

	method := inferMethod(lower)
	if method == "" {
		if m, ok := stringParam(current, "method"); ok {
			method = strings.ToUpper(m)
		} else {
			method = "GET"
		}
	}
	params["method"] = method

	url, ok := extractRequestURL(raw)
	if !ok {
		// Accumulated parameters may carry the URL under a role-specific
		// name assigned by the classifier.
		for _, key := range []string{"url", "apiUrl", "webhookUrl", "mediaUrl", "endpoint"} {
			if url, ok = stringParam(current, key); ok {
				break
			}
		}
	}
	if ok {
		params["url"] = url
		confidence += 0.2
	} else {
		followUp = append(followUp, "What URL should the HTTP request call?")
	}

	if pairs := extractQueryPairs(raw); len(pairs) > 0 {
		params["queryParameters"] = pairs
		confidence += 0.05
	}

	needsMore := len(followUp) > 0
	if needsMore {
		confidence = missingCap
	}

	explanation := "Configured HTTP request: " + method
	if u, ok := params["url"].(string); ok {
		explanation += " " + u
	}

	return Result{
		Parameters:    params,
		Explanation:   explanation,
		Confidence:    clamp(confidence),
		NeedsMoreInfo: needsMore,
		FollowUp:      followUp,
	}
}

func inferMethod(lower string) string {
	for _, mv := range methodVerbs {
		for _, verb := range mv.Verbs {
			if strings.Contains(lower, verb) {
				return mv.Method
			}
		}
	}
	return ""
}

// extractRequestURL prefers a full http(s) URL; otherwise it upgrades a
// bare host-with-path to https.
func extractRequestURL(raw string) (string, bool) {
	if u, ok := extract.URL(raw); ok {
		return u, true
	}
	lower := strings.ToLower(raw)
	for _, m := range bareHostRe.FindAllString(lower, -1) {
		if strings.Contains(m, "@") {
			continue
		}
		// Require a path or a known API-looking host to avoid matching
		// stray dotted words.
		if strings.Contains(m, "/") || strings.HasPrefix(m, "api.") || strings.HasPrefix(m, "www.") {
			return "https://" + strings.TrimRight(m, ".,;:"), true
		}
	}
	return "", false
}

// extractQueryPairs scans for key=value pairs in the instruction.
func extractQueryPairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, m := range queryPairRe.FindAllStringSubmatch(raw, -1) {
		pairs[m[1]] = strings.Trim(m[2], `"'`)
	}
	if len(pairs) == 0 {
		return nil
	}
	return pairs
}
