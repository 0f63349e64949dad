// Package extract provides stateless parameter extractors that pull typed
// values (email address, URL, priority, platform, duration, file type,
// anchored free text) out of raw request text.
//
// Every extractor is deterministic and side-effect-free. On no match it
// returns ("", false) rather than an error. Each extractor carries a fixed
// additive confidence weight; callers saturate the running total at 1.0.
package extract

import (
	"regexp"
	"strings"
)

// Confidence weights contributed by each extractor on success. The
// saturating-sum policy rewards more specific input without exceeding 1.0.
const (
	WeightEmail    = 0.30
	WeightURL      = 0.25
	WeightPlatform = 0.20
	WeightPriority = 0.15
	WeightDuration = 0.15
	WeightFileType = 0.15
	WeightSpan     = 0.10
)

var (
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	urlRe      = regexp.MustCompile(`https?://[^\s<>"']+`)
	durationRe = regexp.MustCompile(`(?i)\b\d+[-\s]?(minutes?|mins?|hours?|hrs?)\b`)
)

var priorityVocab = []string{
	"critical", "urgent", "high", "medium", "normal", "low", "important", "blocker",
}

// platformVocab lists per-domain platform vocabularies. Ordering matters:
// the first match wins.
var platformVocab = []struct {
	Domain string
	Names  []string
}{
	{"social", []string{"twitter", "facebook", "instagram", "linkedin", "tiktok", "youtube"}},
	{"project", []string{"asana", "trello", "jira", "monday", "notion", "clickup"}},
	{"meeting", []string{"zoom", "google meet", "teams", "webex", "calendly"}},
}

var durationVocab = []string{"quick", "brief", "short", "long"}

var fileTypeVocab = []string{
	"pdf", "csv", "xlsx", "xls", "json", "xml", "docx", "txt", "png", "jpg", "jpeg", "zip",
}

// Email returns the first email-shaped substring in text.
func Email(text string) (string, bool) {
	m := emailRe.FindString(text)
	return m, m != ""
}

// URL returns the first http(s) URL in text, with trailing punctuation
// trimmed. The extractor is role-agnostic; callers decide which field name
// the URL belongs to.
func URL(text string) (string, bool) {
	m := urlRe.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.TrimRight(m, ".,;:!?)"), true
}

// Priority matches the fixed priority vocabulary, case-insensitive,
// whole-word. The first vocabulary entry found in the text wins.
func Priority(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range priorityVocab {
		if containsWord(lower, p) {
			return p, true
		}
	}
	return "", false
}

// Platform matches per-domain platform vocabularies; the first match wins.
// The returned value is the canonical platform name.
func Platform(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, domain := range platformVocab {
		for _, name := range domain.Names {
			if strings.Contains(lower, name) {
				return name, true
			}
		}
	}
	return "", false
}

// PlatformDomain reports which vocabulary domain a platform name belongs to.
func PlatformDomain(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, domain := range platformVocab {
		for _, n := range domain.Names {
			if n == lower {
				return domain.Domain, true
			}
		}
	}
	return "", false
}

// Duration matches "<n> minute/hour" patterns or qualitative duration terms.
func Duration(text string) (string, bool) {
	if m := durationRe.FindString(text); m != "" {
		return strings.ToLower(m), true
	}
	lower := strings.ToLower(text)
	for _, q := range durationVocab {
		if containsWord(lower, q) {
			return q, true
		}
	}
	return "", false
}

// FileType matches the fixed vocabulary of file extensions/format names.
func FileType(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, ft := range fileTypeVocab {
		if containsWord(lower, ft) {
			return ft, true
		}
	}
	return "", false
}

// After returns the trimmed text following the first occurrence of any of
// the anchor phrases, up to the next clause boundary (newline, period, or
// end of string). Anchors are matched case-insensitively and in the order
// given, so callers control precedence.
func After(text string, anchors ...string) (string, bool) {
	lower := strings.ToLower(text)
	for _, anchor := range anchors {
		a := strings.ToLower(anchor)
		idx := strings.Index(lower, a)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(a):]
		rest = strings.TrimLeft(rest, ": \t")
		if cut := strings.IndexAny(rest, "\n."); cut >= 0 {
			rest = rest[:cut]
		}
		rest = strings.TrimSpace(rest)
		if rest == "" {
			continue
		}
		return rest, true
	}
	return "", false
}

// containsWord reports whether lower contains word bounded by non-letters.
func containsWord(lower, word string) bool {
	idx := 0
	for {
		pos := strings.Index(lower[idx:], word)
		if pos < 0 {
			return false
		}
		pos += idx
		end := pos + len(word)
		beforeOK := pos == 0 || !isWordChar(lower[pos-1])
		afterOK := end == len(lower) || !isWordChar(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = pos + 1
	}
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
