// Package catalog provides the static registry of workflow node archetypes.
// It maps archetype ids to metadata (display name, machine type, keywords)
// and maintains an inverted keyword index used by the intent classifier.
package catalog

import (
	"log/slog"
	"sort"
	"strings"
)

// Archetype describes a reusable automation-step template, such as
// "Send Email" or "HTTP Request".
type Archetype struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	MachineType string   `json:"machine_type"` // node type id consumed by the execution platform
	Keywords    []string `json:"keywords"`
}

// Catalog holds all known archetypes plus a word -> archetype-id index.
// It is built once and read-only afterwards, so concurrent reads are safe
// without locking.
type Catalog struct {
	archetypes map[string]Archetype
	order      []string // preserves registration order
	index      map[string][]string
}

// New builds a catalog from the given archetype list. A malformed list
// (empty or duplicate ids, empty display names) is logged and yields an
// empty catalog; callers treat an empty catalog as "no matches".
func New(archetypes []Archetype, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Catalog{
		archetypes: make(map[string]Archetype, len(archetypes)),
		index:      make(map[string][]string),
	}

	for i, a := range archetypes {
		if strings.TrimSpace(a.ID) == "" {
			logger.Error("catalog: archetype with empty id, yielding empty catalog", "position", i)
			return emptyCatalog()
		}
		if strings.TrimSpace(a.DisplayName) == "" {
			logger.Error("catalog: archetype with empty display name, yielding empty catalog", "id", a.ID)
			return emptyCatalog()
		}
		if _, exists := c.archetypes[a.ID]; exists {
			logger.Error("catalog: duplicate archetype id, yielding empty catalog", "id", a.ID)
			return emptyCatalog()
		}
		c.archetypes[a.ID] = a
		c.order = append(c.order, a.ID)
	}

	c.buildIndex()
	return c
}

func emptyCatalog() *Catalog {
	return &Catalog{
		archetypes: make(map[string]Archetype),
		index:      make(map[string][]string),
	}
}

// buildIndex tokenizes every archetype's display name and keywords into
// lowercase alphabetic tokens. The index is many-to-many: overlapping
// keywords map a single word to several archetypes.
func (c *Catalog) buildIndex() {
	for _, id := range c.order {
		a := c.archetypes[id]
		seen := make(map[string]bool)
		for _, token := range Tokenize(a.DisplayName) {
			seen[token] = true
		}
		for _, kw := range a.Keywords {
			for _, token := range Tokenize(kw) {
				seen[token] = true
			}
		}
		for token := range seen {
			c.index[token] = append(c.index[token], id)
		}
	}
	// Index order follows registration order for deterministic lookups.
	for token := range c.index {
		ids := c.index[token]
		sort.SliceStable(ids, func(i, j int) bool {
			return c.position(ids[i]) < c.position(ids[j])
		})
	}
}

func (c *Catalog) position(id string) int {
	for i, existing := range c.order {
		if existing == id {
			return i
		}
	}
	return len(c.order)
}

// Tokenize splits text into lowercase alphabetic tokens. Digits,
// punctuation, and single letters are dropped.
func Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() >= 2 {
			tokens = append(tokens, b.String())
		}
		b.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// Lookup returns the archetypes indexed under the given word, in
// registration order. Unknown words return nil.
func (c *Catalog) Lookup(word string) []Archetype {
	ids := c.index[strings.ToLower(strings.TrimSpace(word))]
	if len(ids) == 0 {
		return nil
	}
	result := make([]Archetype, 0, len(ids))
	for _, id := range ids {
		result = append(result, c.archetypes[id])
	}
	return result
}

// ByID returns an archetype by id.
func (c *Catalog) ByID(id string) (Archetype, bool) {
	a, ok := c.archetypes[id]
	return a, ok
}

// All returns all archetypes in registration order.
func (c *Catalog) All() []Archetype {
	result := make([]Archetype, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, c.archetypes[id])
	}
	return result
}

// Len returns the number of registered archetypes.
func (c *Catalog) Len() int {
	return len(c.archetypes)
}
