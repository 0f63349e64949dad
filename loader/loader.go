// Package loader reads workflow category definitions from YAML or JSON
// files so deployments can extend or override the built-in category set
// without recompiling.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dxtr-labs/v1.0-sub000/classify"
)

// categoryFile is the on-disk document shape.
type categoryFile struct {
	Categories []classify.Category `yaml:"categories" json:"categories"`
}

// Load reads one category file. The format follows the file extension:
// .yaml/.yml parse as YAML, anything else as JSON.
func Load(path string) ([]classify.Category, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	cats, err := parse(data, path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cats, nil
}

// LoadDir loads every category file in a directory in lexical order.
// Non-category files are skipped by extension.
func LoadDir(dir string) ([]classify.Category, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" || ext == ".json" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var all []classify.Category
	for _, name := range names {
		cats, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, cats...)
	}
	return all, nil
}

// Merge overlays custom categories on the base set. A custom category
// whose id matches a base category replaces it in place; new ids append
// in their given order. Registration order is significant downstream, so
// replacement keeps the base position.
func Merge(base, custom []classify.Category) []classify.Category {
	merged := make([]classify.Category, len(base))
	copy(merged, base)

	index := make(map[string]int, len(base))
	for i, c := range base {
		index[c.ID] = i
	}

	for _, c := range custom {
		if i, ok := index[c.ID]; ok {
			merged[i] = c
			continue
		}
		index[c.ID] = len(merged)
		merged = append(merged, c)
	}
	return merged
}

func parse(data []byte, path string) ([]classify.Category, error) {
	var doc categoryFile
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("no categories defined")
	}
	for i, c := range doc.Categories {
		if err := validate(c); err != nil {
			return nil, fmt.Errorf("category %d: %w", i, err)
		}
	}
	return doc.Categories, nil
}

func validate(c classify.Category) error {
	switch {
	case c.ID == "":
		return fmt.Errorf("missing id")
	case c.DisplayName == "":
		return fmt.Errorf("%s: missing display_name", c.ID)
	case len(c.Template.Nodes) == 0:
		return fmt.Errorf("%s: template has no nodes", c.ID)
	case c.ConfidenceBoost < 0 || c.ConfidenceBoost > 1:
		return fmt.Errorf("%s: confidence_boost %v out of range", c.ID, c.ConfidenceBoost)
	}
	for j, n := range c.Template.Nodes {
		if n.ArchetypeID == "" {
			return fmt.Errorf("%s: template node %d missing archetype", c.ID, j)
		}
	}
	return nil
}

// isYAML reports whether the file path has a YAML extension.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
