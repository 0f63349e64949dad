package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	autoflow "github.com/dxtr-labs/v1.0-sub000"
)

// NewChatCmd creates the "chat" subcommand: an interactive workflow-builder
// conversation on stdin/stdout.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Build a workflow through an interactive conversation",
		RunE:  runChat,
	}

	cmd.Flags().String("categories-dir", "", "Directory of custom category files (YAML or JSON)")
	cmd.Flags().String("enhance-provider", "", "LLM provider for parameter enhancement (openai | anthropic | ollama)")
	cmd.Flags().String("enhance-model", "", "Model id for parameter enhancement")
	cmd.Flags().String("enhance-api-key", "", "API key for the enhancement provider (default: $AUTOFLOW_ENHANCE_API_KEY)")
	cmd.Flags().Duration("enhance-timeout", 5*time.Second, "Per-node enhancement call timeout")
	cmd.Flags().StringArray("service", nil, "Offer a content service, id=Label (repeatable)")
	cmd.Flags().String("platform-url", "", "Automation platform endpoint confirmed workflows are deployed to")
	cmd.Flags().String("platform-api-key", "", "Bearer token for the automation platform")

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	categoriesDir, _ := cmd.Flags().GetString("categories-dir")
	enhanceProvider, _ := cmd.Flags().GetString("enhance-provider")
	enhanceModel, _ := cmd.Flags().GetString("enhance-model")
	enhanceAPIKey, _ := cmd.Flags().GetString("enhance-api-key")
	enhanceTimeout, _ := cmd.Flags().GetDuration("enhance-timeout")
	serviceFlags, _ := cmd.Flags().GetStringArray("service")
	platformURL, _ := cmd.Flags().GetString("platform-url")
	platformAPIKey, _ := cmd.Flags().GetString("platform-api-key")
	out := cmd.OutOrStdout()

	logger := slog.Default()
	cat, classifier, err := buildClassifier(categoriesDir, logger)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	enhancer, err := buildEnhancer(enhanceProvider, enhanceModel, enhanceAPIKey)
	if err != nil {
		return err
	}
	services, err := parseServiceFlags(serviceFlags)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	var executor autoflow.Executor
	if platformURL != "" {
		executor = newPlatformExecutor(platformURL, platformAPIKey)
	}

	engine := autoflow.NewEngine(autoflow.Config{
		Catalog:        cat,
		Classifier:     classifier,
		Enhancer:       enhancer,
		EnhanceTimeout: enhanceTimeout,
		Executor:       executor,
		Services:       services,
		Logger:         logger,
	})

	sess := autoflow.NewSession("")
	reply, err := engine.Advance(cmd.Context(), sess, autoflow.Turn{})
	if err != nil {
		return exitError(exitRuntime, "starting conversation: %v", err)
	}
	renderReply(out, reply)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" {
			break
		}

		reply, err = engine.Advance(cmd.Context(), sess, autoflow.Turn{Text: line})
		if err != nil {
			return exitError(exitRuntime, "conversation error: %v", err)
		}
		renderReply(out, reply)
		if reply.Done() {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return exitError(exitRuntime, "reading input: %v", err)
	}
	return nil
}

// renderReply prints one conversation reply in a terminal-friendly form.
func renderReply(w io.Writer, reply autoflow.Reply) {
	switch r := reply.(type) {
	case *autoflow.SearchingReply:
		fmt.Fprintln(w, r.Prompt)
	case *autoflow.CandidateListReply:
		for i, c := range r.Candidates {
			fmt.Fprintf(w, "  %d. %s (%.0f%%) — %s\n", i+1, c.TemplateName, c.Confidence*100, c.Explanation)
		}
		fmt.Fprintln(w, r.Prompt)
	case *autoflow.NodeQuestionReply:
		fmt.Fprintf(w, "Configuring %s:\n", r.NodeName)
		for _, q := range r.Questions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	case *autoflow.ServiceSelectionReply:
		fmt.Fprintln(w, r.Prompt)
		for i, opt := range r.Options {
			fmt.Fprintf(w, "  %d. %s\n", i+1, opt.Label)
		}
	case *autoflow.PreviewReply:
		fmt.Fprintf(w, "Workflow: %s\n", r.Workflow.Name)
		for _, node := range r.Workflow.Nodes {
			fmt.Fprintf(w, "  [%s] %s\n", node.Type, node.Name)
			keys := make([]string, 0, len(node.Parameters))
			for k := range node.Parameters {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "      %s: %v\n", k, node.Parameters[k])
			}
		}
		if r.Explanation != "" {
			fmt.Fprintln(w, r.Explanation)
		}
		fmt.Fprintf(w, "Confidence: %.0f%%\n", r.Confidence*100)
		fmt.Fprintln(w, r.Prompt)
	case *autoflow.ExecutedReply:
		fmt.Fprintln(w, r.Summary)
		if r.RunID != "" {
			fmt.Fprintf(w, "Run id: %s\n", r.RunID)
		}
	case *autoflow.CancelledReply:
		fmt.Fprintln(w, r.Reason)
	default:
		fmt.Fprintf(w, "%v\n", reply)
	}
}
