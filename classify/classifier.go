package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dxtr-labs/v1.0-sub000/catalog"
	"github.com/dxtr-labs/v1.0-sub000/extract"
)

// Scoring weights for vocabulary hits. These constants are load-bearing:
// downstream confidence thresholds depend on the exact values and the
// saturating-sum policy, so they must not be renormalized.
const (
	weightKeyword  = 0.15
	weightPlatform = 0.25
	weightAction   = 0.10
	weightPriority = 0.15

	// floorConfidence keeps zero-hit categories alive as low-confidence
	// fallback candidates so the caller can always offer a custom workflow.
	floorConfidence = 0.10
)

// Candidate is a scored guess at which workflow category matches a request.
// MatchedArchetypes lists the template steps whose catalog keywords appear
// in the request, in template order.
type Candidate struct {
	CategoryID        string            `json:"category_id"`
	TemplateName      string            `json:"template_name"`
	Confidence        float64           `json:"confidence"`
	Parameters        map[string]string `json:"parameters"`
	MatchedKeywords   []string          `json:"matched_keywords"`
	MatchedArchetypes []string          `json:"matched_archetypes,omitempty"`
	Explanation       string            `json:"explanation"`
}

// Classifier scores request text against a fixed category list using the
// archetype catalog and the pattern extractors.
type Classifier struct {
	catalog    *catalog.Catalog
	categories []Category
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates a classifier over the given catalog and categories.
func New(cat *catalog.Catalog, categories []Category, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		catalog:    cat,
		categories: categories,
		logger:     logger,
		tracer:     otel.Tracer("autoflow/classify"),
	}
}

// Categories returns the configured category list in registration order.
func (c *Classifier) Categories() []Category {
	return c.categories
}

// CategoryByID returns a category by id.
func (c *Classifier) CategoryByID(id string) (Category, bool) {
	for _, cat := range c.categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// Classify scores text against every category and returns candidates
// sorted by descending confidence. The sort is stable: category
// registration order breaks ties. The result is never empty as long as
// at least one category is configured — zero-hit categories survive with
// floor confidence as "build a custom workflow" fallbacks.
func (c *Classifier) Classify(ctx context.Context, text string) []Candidate {
	_, span := c.tracer.Start(ctx, "classify.Classify")
	defer span.End()

	lower := strings.ToLower(text)
	candidates := make([]Candidate, 0, len(c.categories))
	for _, cat := range c.categories {
		candidates = append(candidates, c.score(cat, lower, text))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
	)
	if len(candidates) > 0 {
		span.SetAttributes(attribute.String("top_category", candidates[0].CategoryID))
	}
	return candidates
}

func (c *Classifier) score(cat Category, lower, raw string) Candidate {
	var (
		confidence float64
		matched    []string
		params     = make(map[string]string)
	)

	anyKeyword := false
	for _, kw := range cat.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			confidence += weightKeyword
			matched = append(matched, kw)
			anyKeyword = true
		}
	}
	for _, p := range cat.Platforms {
		if strings.Contains(lower, strings.ToLower(p)) {
			confidence += weightPlatform
			matched = append(matched, p)
			params["platform"] = p
		}
	}
	anyAction := false
	for _, a := range cat.ActionWords {
		if strings.Contains(lower, strings.ToLower(a)) {
			confidence += weightAction
			matched = append(matched, a)
			anyAction = true
		}
	}
	for _, pr := range cat.Priorities {
		if strings.Contains(lower, strings.ToLower(pr)) {
			confidence += weightPriority
			matched = append(matched, pr)
			params["priority"] = pr
		}
	}

	// The boost guard is "any keyword or action-word hit", matching the
	// original's matched-elements collection.
	if anyKeyword || anyAction {
		confidence += cat.ConfidenceBoost
	}

	confidence += c.patternExtract(cat, raw, params)
	confidence += spanExtract(cat, raw, params)

	if confidence < floorConfidence {
		confidence = floorConfidence
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	steps := c.archetypeHits(cat, raw)

	return Candidate{
		CategoryID:        cat.ID,
		TemplateName:      cat.Template.Name,
		Confidence:        confidence,
		Parameters:        params,
		MatchedKeywords:   matched,
		MatchedArchetypes: steps,
		Explanation:       explain(cat, matched, steps),
	}
}

// archetypeHits resolves request tokens against the catalog's inverted
// keyword index and keeps the hits that belong to the category's template.
// Hits explain which concrete steps the request already names; they do not
// contribute confidence, which is fixed by the vocabulary weights above.
func (c *Classifier) archetypeHits(cat Category, raw string) []string {
	if c.catalog == nil || c.catalog.Len() == 0 {
		return nil
	}

	hit := make(map[string]bool)
	for _, token := range catalog.Tokenize(raw) {
		for _, arch := range c.catalog.Lookup(token) {
			hit[arch.ID] = true
		}
	}
	if len(hit) == 0 {
		return nil
	}

	var names []string
	seen := make(map[string]bool)
	for _, tn := range cat.Template.Nodes {
		if !hit[tn.ArchetypeID] || seen[tn.ArchetypeID] {
			continue
		}
		seen[tn.ArchetypeID] = true
		if arch, ok := c.catalog.ByID(tn.ArchetypeID); ok {
			names = append(names, arch.DisplayName)
		}
	}
	return names
}

// patternExtract runs the pattern-based extractors and routes each value
// to the category-appropriate field name. Unrouted extractions contribute
// nothing.
func (c *Classifier) patternExtract(cat Category, raw string, params map[string]string) float64 {
	var confidence float64

	if cat.EmailField != "" {
		if v, ok := extract.Email(raw); ok {
			params[cat.EmailField] = v
			confidence += extract.WeightEmail
		}
	}
	if cat.URLField != "" {
		if v, ok := extract.URL(raw); ok {
			params[cat.URLField] = v
			confidence += extract.WeightURL
		}
	}
	if v, ok := extract.Priority(raw); ok {
		if _, present := params["priority"]; !present {
			params["priority"] = v
			confidence += extract.WeightPriority
		}
	}
	if v, ok := extract.Platform(raw); ok {
		if _, present := params["platform"]; !present {
			params["platform"] = v
			confidence += extract.WeightPlatform
		}
	}
	if cat.DurationField != "" {
		if v, ok := extract.Duration(raw); ok {
			params[cat.DurationField] = v
			confidence += extract.WeightDuration
		}
	}
	if cat.FileTypeField != "" {
		if v, ok := extract.FileType(raw); ok {
			params[cat.FileTypeField] = v
			confidence += extract.WeightFileType
		}
	}
	return confidence
}

func spanExtract(cat Category, raw string, params map[string]string) float64 {
	var confidence float64
	for _, rule := range cat.Spans {
		if v, ok := extract.After(raw, rule.Anchors...); ok {
			params[rule.Field] = v
			confidence += extract.WeightSpan
		}
	}
	return confidence
}

func explain(cat Category, matched, steps []string) string {
	if len(matched) == 0 && len(steps) == 0 {
		return fmt.Sprintf("No strong signals for %s; offered as a custom starting point", cat.DisplayName)
	}
	s := "Matched " + cat.DisplayName
	if len(matched) > 0 {
		s += " via: " + strings.Join(matched, ", ")
	}
	if len(steps) > 0 {
		s += "; covers steps: " + strings.Join(steps, ", ")
	}
	return s
}
