package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dxtr-labs/v1.0-sub000/graph"
)

const exitFileNotFound = 3

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow definition file without deploying",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	out := cmd.OutOrStdout()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		return fmt.Errorf("reading file: %w", err)
	}

	var wf graph.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return exitError(exitValidation, "parsing workflow: %v", err)
	}

	diags := wf.Validate()
	printValidateDiagnostics(out, diags, format)

	hasErrs := graph.HasErrors(diags)
	hasWarns := false
	for _, d := range diags {
		if d.Severity == graph.SeverityWarning {
			hasWarns = true
		}
	}

	if hasErrs || (strict && hasWarns) {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

func printValidateDiagnostics(out io.Writer, diags []graph.Diagnostic, format string) {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(diags)
		return
	}
	if len(diags) == 0 {
		fmt.Fprintln(out, "OK: workflow is valid")
		return
	}
	for _, d := range diags {
		fmt.Fprintf(out, "%s %s: %s\n", d.Severity, d.Code, d.Message)
		if d.Path != "" {
			fmt.Fprintf(out, "  at %s\n", d.Path)
		}
	}
}
