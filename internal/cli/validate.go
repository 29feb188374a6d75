package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/arbor/internal/item"
	"github.com/roach88/arbor/internal/predicate"
	"github.com/roach88/arbor/internal/serial"
)

// ValidationIssue is one problem found in a serialized tree or scope file.
type ValidationIssue struct {
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var scopeFile string

	cmd := &cobra.Command{
		Use:   "validate <tree-dir>",
		Short: "Validate serialized trees without touching the store",
		Long: `Validate on-disk serialized item files without a live store.

Parses every serialized file, checks identities, languages and field
structure, and rejects duplicate identities across files. With --scope the
scope file is compiled and checked too.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], scopeFile, cmd)
		},
	}

	cmd.Flags().StringVar(&scopeFile, "scope", "", "path to CUE scope file to validate")

	return cmd
}

func runValidate(opts *RootOptions, treeDir, scopeFile string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	src, err := serial.Open(treeDir)
	if err != nil {
		_ = out.Error("E001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open serialized tree", err)
	}

	result := validateTrees(src, out)

	if scopeFile != "" {
		out.VerboseLog("Compiling scope %s", scopeFile)
		if _, err := predicate.LoadScope(scopeFile); err != nil {
			result.Issues = append(result.Issues, ValidationIssue{
				File:    scopeFile,
				Message: err.Error(),
			})
		}
	}

	result.Valid = len(result.Issues) == 0
	return outputValidation(out, result)
}

// validateTrees parses every serialized file under the source, collecting
// issues instead of stopping at the first.
func validateTrees(src *serial.Source, out *OutputFormatter) ValidationResult {
	var result ValidationResult

	roots, err := src.Roots()
	if err != nil {
		result.Issues = append(result.Issues, ValidationIssue{Message: err.Error()})
		return result
	}

	seen := make(map[item.ID]string)
	for _, root := range roots {
		refs := []*serial.Ref{root}
		children, err := root.Children(true)
		if err != nil {
			result.Issues = append(result.Issues, ValidationIssue{
				File:    root.File,
				Message: err.Error(),
			})
			continue
		}
		refs = append(refs, children...)

		for _, ref := range refs {
			result.Files++
			out.VerboseLog("Validating %s", ref.File)

			it, err := ref.Item()
			if err != nil {
				result.Issues = append(result.Issues, ValidationIssue{
					File:    ref.File,
					Message: err.Error(),
				})
				continue
			}
			if it == nil {
				continue
			}
			if prior, dup := seen[it.ID]; dup {
				result.Issues = append(result.Issues, ValidationIssue{
					File:    ref.File,
					Message: fmt.Sprintf("duplicate id %s: already declared in %s", it.ID, prior),
				})
				continue
			}
			seen[it.ID] = ref.File
		}
	}
	return result
}

// outputValidation renders the result and maps it to an exit code.
func outputValidation(out *OutputFormatter, result ValidationResult) error {
	if out.Format == "json" {
		if result.Valid {
			return out.Success(result)
		}
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    "E001",
				Message: result.Issues[0].Message,
			},
		}
		if err := json.NewEncoder(out.Writer).Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(result.Issues)))
	}

	if result.Valid {
		fmt.Fprintf(out.Writer, "✓ %d serialized file(s) valid\n", result.Files)
		return nil
	}

	fmt.Fprintln(out.Writer, "✗ Validation failed")
	fmt.Fprintln(out.Writer)
	for _, issue := range result.Issues {
		if issue.File != "" {
			fmt.Fprintf(out.Writer, "%s\n", issue.File)
		}
		fmt.Fprintf(out.Writer, "  %s\n\n", issue.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(result.Issues)))
}
