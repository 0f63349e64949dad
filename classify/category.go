// Package classify scores free-text automation requests against workflow
// categories and produces ranked candidates with extracted parameters.
package classify

// SpanRule routes anchored free text into a named parameter field.
// Anchor order controls precedence.
type SpanRule struct {
	Field   string   `yaml:"field" json:"field"`
	Anchors []string `yaml:"anchors" json:"anchors"`
}

// TemplateNode is one step of a category's workflow template.
type TemplateNode struct {
	ArchetypeID string `yaml:"archetype" json:"archetype"`
	Name        string `yaml:"name" json:"name"`
}

// Template is the ordered node list a category expands into when selected.
type Template struct {
	Name  string         `yaml:"name" json:"name"`
	Nodes []TemplateNode `yaml:"nodes" json:"nodes"`
}

// Category is one scored workflow category. Vocabulary hits contribute
// fixed weights; ConfidenceBoost is added once when at least one keyword
// or action-word hit occurred.
//
// EmailField, URLField, DurationField and FileTypeField name the parameter
// a pattern extraction is routed to for this category; an empty field name
// means the extraction is not routed (e.g. an email address is a recipient
// for email categories but meaningless for data processing).
type Category struct {
	ID              string   `yaml:"id" json:"id"`
	DisplayName     string   `yaml:"display_name" json:"display_name"`
	Keywords        []string `yaml:"keywords" json:"keywords"`
	Platforms       []string `yaml:"platforms" json:"platforms"`
	ActionWords     []string `yaml:"action_words" json:"action_words"`
	Priorities      []string `yaml:"priorities" json:"priorities"`
	ConfidenceBoost float64  `yaml:"confidence_boost" json:"confidence_boost"`

	EmailField    string `yaml:"email_field" json:"email_field"`
	URLField      string `yaml:"url_field" json:"url_field"`
	DurationField string `yaml:"duration_field" json:"duration_field"`
	FileTypeField string `yaml:"file_type_field" json:"file_type_field"`

	Spans    []SpanRule `yaml:"spans" json:"spans"`
	Template Template   `yaml:"template" json:"template"`
}

// Builtins returns the built-in category set in registration order.
// Registration order is the tie-break for equal-confidence candidates.
func Builtins() []Category {
	return []Category{
		{
			ID:              "email-automation",
			DisplayName:     "Email Automation",
			Keywords:        []string{"email", "mail", "notification", "notify", "reminder", "inbox"},
			Platforms:       []string{"gmail", "outlook"},
			ActionWords:     []string{"send", "notify", "remind", "forward"},
			Priorities:      []string{"urgent", "important"},
			ConfidenceBoost: 0.25,
			EmailField:      "recipient",
			Spans: []SpanRule{
				{Field: "subject", Anchors: []string{"subject:", "about", "regarding"}},
				{Field: "message", Anchors: []string{"saying", "message:", "body:", "content:"}},
			},
			Template: Template{
				Name: "Email Notification",
				Nodes: []TemplateNode{
					{ArchetypeID: "manual-trigger", Name: "Start"},
					{ArchetypeID: "email-send", Name: "Send Email"},
				},
			},
		},
		{
			ID:              "meeting-scheduling",
			DisplayName:     "Meeting Scheduling",
			Keywords:        []string{"meeting", "call", "schedule", "appointment", "calendar", "sync"},
			Platforms:       []string{"zoom", "google meet", "teams", "webex", "calendly"},
			ActionWords:     []string{"schedule", "book", "arrange", "plan"},
			Priorities:      []string{"urgent"},
			ConfidenceBoost: 0.25,
			EmailField:      "recipient",
			DurationField:   "meetingType",
			Spans: []SpanRule{
				{Field: "subject", Anchors: []string{"about", "regarding", "to discuss"}},
			},
			Template: Template{
				Name: "Meeting Scheduler",
				Nodes: []TemplateNode{
					{ArchetypeID: "manual-trigger", Name: "Start"},
					{ArchetypeID: "http-request", Name: "Create Calendar Event"},
					{ArchetypeID: "email-send", Name: "Send Invite"},
				},
			},
		},
		{
			ID:              "data-processing",
			DisplayName:     "Data Processing",
			Keywords:        []string{"data", "process", "transform", "convert", "parse", "extract", "sync"},
			ActionWords:     []string{"process", "transform", "convert", "fetch", "import", "export"},
			ConfidenceBoost: 0.20,
			URLField:        "apiUrl",
			FileTypeField:   "fileType",
			Spans: []SpanRule{
				{Field: "operation", Anchors: []string{"operation:"}},
				{Field: "method", Anchors: []string{"method:"}},
			},
			Template: Template{
				Name: "Data Pipeline",
				Nodes: []TemplateNode{
					{ArchetypeID: "webhook-trigger", Name: "Receive Data"},
					{ArchetypeID: "http-request", Name: "Fetch Data"},
					{ArchetypeID: "set", Name: "Map Fields"},
				},
			},
		},
		{
			ID:              "social-media",
			DisplayName:     "Social Media Posting",
			Keywords:        []string{"social", "post", "tweet", "publish", "share"},
			Platforms:       []string{"twitter", "facebook", "instagram", "linkedin", "tiktok"},
			ActionWords:     []string{"post", "publish", "share", "announce"},
			ConfidenceBoost: 0.20,
			URLField:        "mediaUrl",
			Spans: []SpanRule{
				{Field: "content", Anchors: []string{"saying", "post:", "content:", "about"}},
			},
			Template: Template{
				Name: "Scheduled Social Post",
				Nodes: []TemplateNode{
					{ArchetypeID: "schedule-trigger", Name: "Schedule"},
					{ArchetypeID: "http-request", Name: "Publish Post"},
				},
			},
		},
		{
			ID:              "task-management",
			DisplayName:     "Task Creation",
			Keywords:        []string{"task", "ticket", "todo", "issue", "card", "project"},
			Platforms:       []string{"asana", "trello", "jira", "monday", "notion"},
			ActionWords:     []string{"create", "add", "assign", "track"},
			Priorities:      []string{"critical", "high", "medium", "low", "blocker"},
			ConfidenceBoost: 0.20,
			Spans: []SpanRule{
				{Field: "title", Anchors: []string{"task:", "called", "titled", "about"}},
			},
			Template: Template{
				Name: "Task Creator",
				Nodes: []TemplateNode{
					{ArchetypeID: "manual-trigger", Name: "Start"},
					{ArchetypeID: "http-request", Name: "Create Task"},
				},
			},
		},
		{
			ID:              "webhook-integration",
			DisplayName:     "Webhook Integration",
			Keywords:        []string{"webhook", "integration", "connect", "api", "endpoint", "callback"},
			ActionWords:     []string{"receive", "listen", "forward", "relay"},
			ConfidenceBoost: 0.20,
			URLField:        "webhookUrl",
			Template: Template{
				Name: "Webhook Relay",
				Nodes: []TemplateNode{
					{ArchetypeID: "webhook-trigger", Name: "Receive Webhook"},
					{ArchetypeID: "http-request", Name: "Forward Request"},
					{ArchetypeID: "no-op", Name: "Done"},
				},
			},
		},
	}
}
