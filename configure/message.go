package configure

import (
	"regexp"
	"strings"

	"github.com/dxtr-labs/v1.0-sub000/catalog"
	"github.com/dxtr-labs/v1.0-sub000/extract"
)

var channelRe = regexp.MustCompile(`#[a-z0-9][a-z0-9_\-]*`)

// purposeDefaults composes a default subject/body when the instruction
// signals a known purpose but no explicit values were given. A deliberate
// UX shortcut: defaulted fields contribute less confidence than explicit
// ones.
var purposeDefaults = []struct {
	Signal  string
	Subject string
	Body    string
}{
	{"alert", "Alert Notification", "This is an automated alert from your workflow."},
	{"alarm", "Alert Notification", "This is an automated alert from your workflow."},
	{"report", "Scheduled Report", "Please find your scheduled report attached."},
	{"welcome", "Welcome!", "Welcome aboard! We're glad to have you."},
}

func configureMessage(arch catalog.Archetype, lower, raw string, current map[string]any) Result {
	if strings.Contains(arch.MachineType, "slack") || strings.Contains(arch.MachineType, "telegram") {
		return configureChat(arch, lower, raw, current)
	}
	return configureEmail(lower, raw, current)
}

// configureEmail requires recipient, subject, and message text, asked for
// in that fixed order.
func configureEmail(lower, raw string, current map[string]any) Result {
	params := make(map[string]any)
	confidence := 0.6
	var followUp []string

	to, okTo := extract.Email(raw)
	if !okTo {
		to, okTo = stringParam(current, "to")
	}
	if !okTo {
		to, okTo = stringParam(current, "recipient")
	}
	if okTo {
		params["to"] = to
		confidence += 0.15
	} else {
		followUp = append(followUp, "Who should receive the email?")
	}

	subject, okSubject := extract.After(raw, "subject:", "about", "regarding")
	if okSubject {
		confidence += 0.10
	} else {
		subject, okSubject = stringParam(current, "subject")
		if okSubject {
			confidence += 0.10
		}
	}

	body, okBody := extract.After(raw, "saying", "message:", "body:", "content:")
	if !okBody {
		body, okBody = stringParam(current, "text")
	}
	if !okBody {
		body, okBody = stringParam(current, "message")
	}
	if okBody {
		confidence += 0.10
	}

	// Purpose detection fills whichever of subject/body is still missing.
	if !okSubject || !okBody {
		for _, pd := range purposeDefaults {
			if !strings.Contains(lower, pd.Signal) {
				continue
			}
			if !okSubject {
				subject, okSubject = pd.Subject, true
				confidence += 0.05
			}
			if !okBody {
				body, okBody = pd.Body, true
				confidence += 0.05
			}
			break
		}
	}

	if okSubject {
		params["subject"] = subject
	} else {
		followUp = append(followUp, "What should the subject line be?")
	}
	if okBody {
		params["text"] = body
	} else {
		followUp = append(followUp, "What should the message say?")
	}

	needsMore := len(followUp) > 0
	if needsMore {
		confidence = missingCap
	}

	explanation := "Configured email"
	if okTo {
		explanation += " to " + to
	}
	if okSubject {
		explanation += ", subject " + strings.TrimSpace(subject)
	}

	return Result{
		Parameters:    params,
		Explanation:   explanation,
		Confidence:    clamp(confidence),
		NeedsMoreInfo: needsMore,
		FollowUp:      followUp,
	}
}

// configureChat requires a channel (or chat id) and message text.
func configureChat(arch catalog.Archetype, lower, raw string, current map[string]any) Result {
	params := make(map[string]any)
	confidence := 0.6
	var followUp []string

	channel, okChannel := "", false
	if m := channelRe.FindString(lower); m != "" {
		channel, okChannel = m, true
	}
	if !okChannel {
		channel, okChannel = stringParam(current, "channel")
	}
	if okChannel {
		params["channel"] = channel
		confidence += 0.15
	} else {
		followUp = append(followUp, "Which channel should the message go to?")
	}

	text, okText := extract.After(raw, "saying", "message:", "post:", "content:")
	if !okText {
		text, okText = stringParam(current, "text")
	}
	if okText {
		params["text"] = text
		confidence += 0.15
	} else {
		followUp = append(followUp, "What should the message say?")
	}

	needsMore := len(followUp) > 0
	if needsMore {
		confidence = missingCap
	}

	return Result{
		Parameters:    params,
		Explanation:   "Configured " + arch.DisplayName,
		Confidence:    clamp(confidence),
		NeedsMoreInfo: needsMore,
		FollowUp:      followUp,
	}
}
