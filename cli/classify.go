package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

// NewClassifyCmd creates the "classify" subcommand: one-shot intent
// classification of a request without starting a conversation.
func NewClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify a request against the workflow categories",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runClassify,
	}

	cmd.Flags().String("categories-dir", "", "Directory of custom category files (YAML or JSON)")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Int("top", 5, "Number of candidates to show")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	categoriesDir, _ := cmd.Flags().GetString("categories-dir")
	format, _ := cmd.Flags().GetString("format")
	top, _ := cmd.Flags().GetInt("top")
	out := cmd.OutOrStdout()

	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return exitError(exitValidation, "request text is required")
	}

	logger := slog.Default()
	_, classifier, err := buildClassifier(categoriesDir, logger)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	candidates := classifier.Classify(cmd.Context(), text)
	if top > 0 && len(candidates) > top {
		candidates = candidates[:top]
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(candidates); err != nil {
			return fmt.Errorf("encoding candidates: %w", err)
		}
	case "text":
		for i, c := range candidates {
			fmt.Fprintf(out, "%d. %s (%s, %.0f%%)\n", i+1, c.TemplateName, c.CategoryID, c.Confidence*100)
			if c.Explanation != "" {
				fmt.Fprintf(out, "   %s\n", c.Explanation)
			}
			for k, v := range c.Parameters {
				fmt.Fprintf(out, "   %s = %s\n", k, v)
			}
		}
	default:
		return exitError(exitValidation, "unknown format %q (want text or json)", format)
	}
	return nil
}
