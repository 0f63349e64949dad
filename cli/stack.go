package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	autoflow "github.com/dxtr-labs/v1.0-sub000"
	"github.com/dxtr-labs/v1.0-sub000/catalog"
	"github.com/dxtr-labs/v1.0-sub000/classify"
	"github.com/dxtr-labs/v1.0-sub000/enhance"
	"github.com/dxtr-labs/v1.0-sub000/irisenhance"
	"github.com/dxtr-labs/v1.0-sub000/loader"
)

// loadCategories returns the builtin category set, optionally merged with
// custom category files from dir. Custom entries override builtins by id.
func loadCategories(dir string) ([]classify.Category, error) {
	cats := classify.Builtins()
	if dir == "" {
		return cats, nil
	}
	custom, err := loader.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loading categories from %s: %w", dir, err)
	}
	return loader.Merge(cats, custom), nil
}

// buildClassifier assembles the archetype catalog and the classifier that
// shares it.
func buildClassifier(categoriesDir string, logger *slog.Logger) (*catalog.Catalog, *classify.Classifier, error) {
	cats, err := loadCategories(categoriesDir)
	if err != nil {
		return nil, nil, err
	}
	cat := catalog.New(catalog.Builtins(), logger)
	return cat, classify.New(cat, cats, logger), nil
}

// buildEnhancer creates the optional iris-backed parameter enhancer.
// An empty provider means rule-based configuration only.
func buildEnhancer(provider, model, apiKey string) (enhance.Enhancer, error) {
	if provider == "" {
		return nil, nil
	}
	if apiKey == "" {
		apiKey = os.Getenv("AUTOFLOW_ENHANCE_API_KEY")
	}
	enh, err := irisenhance.New(irisenhance.Config{
		Provider: provider,
		APIKey:   apiKey,
		Model:    model,
	})
	if err != nil {
		return nil, exitError(exitProvider, "configuring enhancer: %v", err)
	}
	return enh, nil
}

// parseServiceFlags parses repeatable --service id=Label flags into the
// content-service options offered during configuration.
func parseServiceFlags(raw []string) ([]autoflow.ServiceOption, error) {
	opts := make([]autoflow.ServiceOption, 0, len(raw))
	for _, entry := range raw {
		id, label, ok := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		label = strings.TrimSpace(label)
		if !ok || id == "" || label == "" {
			return nil, fmt.Errorf("invalid --service value %q (want id=Label)", entry)
		}
		opts = append(opts, autoflow.ServiceOption{ID: id, Label: label})
	}
	return opts, nil
}
