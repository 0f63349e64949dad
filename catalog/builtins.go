package catalog

// Builtins returns the built-in archetype set. Machine types follow the
// node type ids of the downstream execution platform.
func Builtins() []Archetype {
	return []Archetype{
		{
			ID:          "manual-trigger",
			DisplayName: "Manual Trigger",
			MachineType: "n8n-nodes-base.manualTrigger",
			Keywords:    []string{"manual", "start", "run", "trigger", "begin"},
		},
		{
			ID:          "webhook-trigger",
			DisplayName: "Webhook Trigger",
			MachineType: "n8n-nodes-base.webhook",
			Keywords:    []string{"webhook", "receive", "incoming", "listen", "callback", "endpoint"},
		},
		{
			ID:          "schedule-trigger",
			DisplayName: "Schedule Trigger",
			MachineType: "n8n-nodes-base.scheduleTrigger",
			Keywords:    []string{"schedule", "cron", "daily", "weekly", "hourly", "recurring", "every"},
		},
		{
			ID:          "email-send",
			DisplayName: "Send Email",
			MachineType: "n8n-nodes-base.emailSend",
			Keywords:    []string{"email", "mail", "send", "notify", "message", "smtp"},
		},
		{
			ID:          "email-read",
			DisplayName: "Read Email",
			MachineType: "n8n-nodes-base.emailReadImap",
			Keywords:    []string{"email", "inbox", "read", "imap", "receive"},
		},
		{
			ID:          "http-request",
			DisplayName: "HTTP Request",
			MachineType: "n8n-nodes-base.httpRequest",
			Keywords:    []string{"http", "request", "api", "fetch", "call", "rest", "get", "post"},
		},
		{
			ID:          "set",
			DisplayName: "Set Variable",
			MachineType: "n8n-nodes-base.set",
			Keywords:    []string{"set", "variable", "assign", "value", "field", "store"},
		},
		{
			ID:          "code",
			DisplayName: "Code",
			MachineType: "n8n-nodes-base.code",
			Keywords:    []string{"code", "script", "function", "javascript", "python", "custom", "transform"},
		},
		{
			ID:          "if",
			DisplayName: "If Condition",
			MachineType: "n8n-nodes-base.if",
			Keywords:    []string{"if", "condition", "branch", "check", "compare", "filter"},
		},
		{
			ID:          "no-op",
			DisplayName: "No Operation",
			MachineType: "n8n-nodes-base.noOp",
			Keywords:    []string{"noop", "placeholder", "pass", "nothing"},
		},
		{
			ID:          "slack",
			DisplayName: "Slack Message",
			MachineType: "n8n-nodes-base.slack",
			Keywords:    []string{"slack", "channel", "message", "notify", "chat"},
		},
		{
			ID:          "telegram",
			DisplayName: "Telegram Message",
			MachineType: "n8n-nodes-base.telegram",
			Keywords:    []string{"telegram", "message", "bot", "chat"},
		},
		{
			ID:          "airtable",
			DisplayName: "Airtable",
			MachineType: "n8n-nodes-base.airtable",
			Keywords:    []string{"airtable", "table", "record", "row", "database", "base"},
		},
		{
			ID:          "google-sheets",
			DisplayName: "Google Sheets",
			MachineType: "n8n-nodes-base.googleSheets",
			Keywords:    []string{"sheet", "sheets", "spreadsheet", "row", "column", "google"},
		},
	}
}
