package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dxtr-labs/v1.0-sub000/classify"
)

const validYAML = `
categories:
  - id: incident-response
    display_name: Incident Response
    keywords: [incident, outage, pagerduty]
    action_words: [escalate, page]
    confidence_boost: 0.2
    email_field: recipient
    template:
      name: Incident Escalation
      nodes:
        - archetype: webhook-trigger
          name: Alert Received
        - archetype: email-send
          name: Page On-call
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "custom.yaml", validYAML)
	cats, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cats) != 1 {
		t.Fatalf("got %d categories, want 1", len(cats))
	}
	c := cats[0]
	if c.ID != "incident-response" || c.EmailField != "recipient" {
		t.Errorf("unexpected category: %+v", c)
	}
	if len(c.Template.Nodes) != 2 || c.Template.Nodes[0].ArchetypeID != "webhook-trigger" {
		t.Errorf("unexpected template: %+v", c.Template)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "custom.json", `{
		"categories": [{
			"id": "x",
			"display_name": "X",
			"template": {"name": "T", "nodes": [{"archetype": "no-op", "name": "N"}]}
		}]
	}`)
	cats, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cats) != 1 || cats[0].ID != "x" {
		t.Errorf("unexpected categories: %+v", cats)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"empty document", "a.yaml", "categories: []"},
		{"missing id", "b.yaml", "categories:\n  - display_name: X\n    template:\n      nodes:\n        - archetype: no-op\n"},
		{"missing display name", "c.yaml", "categories:\n  - id: x\n    template:\n      nodes:\n        - archetype: no-op\n"},
		{"empty template", "d.yaml", "categories:\n  - id: x\n    display_name: X\n"},
		{"boost out of range", "e.yaml", "categories:\n  - id: x\n    display_name: X\n    confidence_boost: 1.5\n    template:\n      nodes:\n        - archetype: no-op\n"},
		{"bad yaml", "f.yaml", ":\n  - ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("want error")
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "10-custom.yaml"), []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}
	cats, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(cats) != 1 {
		t.Errorf("got %d categories, want 1 (txt files skipped)", len(cats))
	}
}

func TestMerge(t *testing.T) {
	base := classify.Builtins()
	custom := []classify.Category{
		{ID: "email-automation", DisplayName: "Email (override)"},
		{ID: "incident-response", DisplayName: "Incident Response"},
	}

	merged := Merge(base, custom)
	if len(merged) != len(base)+1 {
		t.Fatalf("got %d categories, want %d", len(merged), len(base)+1)
	}
	if merged[0].ID != "email-automation" || merged[0].DisplayName != "Email (override)" {
		t.Errorf("override must keep the base position: %+v", merged[0])
	}
	if merged[len(merged)-1].ID != "incident-response" {
		t.Errorf("new categories append: %+v", merged[len(merged)-1])
	}
	if base[0].DisplayName == "Email (override)" {
		t.Error("Merge must not mutate the base slice")
	}
}
