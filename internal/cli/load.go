package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/arbor/internal/evaluator"
	"github.com/roach88/arbor/internal/formatter"
	"github.com/roach88/arbor/internal/loader"
	"github.com/roach88/arbor/internal/predicate"
	"github.com/roach88/arbor/internal/serial"
	"github.com/roach88/arbor/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Database           string
	Scope              string
	Tree               string
	AllowMissingFields bool
}

// LoadResult summarizes one load run.
type LoadResult struct {
	Changes int      `json:"changes"`
	Detail  []string `json:"detail,omitempty"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <tree-dir>",
		Short: "Synchronize serialized trees into the live store",
		Long: `Synchronize on-disk serialized item trees into the live SQLite store.

Loads every serialized tree under the given directory, creating, updating,
moving and deleting live items until they match the serialized state. With
--tree only the subtree rooted at the given logical path is loaded.

Example:
  arbor load --db ./content.db ./serialized
  arbor load --db ./content.db --scope ./scope.cue --tree /content/home ./serialized`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "path to CUE scope file (default: everything in scope)")
	cmd.Flags().StringVar(&opts.Tree, "tree", "", "logical path of a single tree to load")
	cmd.Flags().BoolVar(&opts.AllowMissingFields, "allow-missing-fields", false,
		"tolerate serialized fields the target template does not define")

	return cmd
}

func runLoad(opts *LoadOptions, treeDir string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	src, err := serial.Open(treeDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open serialized tree", err)
	}

	var pathScope predicate.Oracle = predicate.IncludeAll{}
	var fieldScope predicate.FieldOracle = predicate.IncludeAll{}
	if opts.Scope != "" {
		slog.Info("compiling scope", "file", opts.Scope)
		scope, err := predicate.LoadScope(opts.Scope)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to compile scope", err)
		}
		pathScope, fieldScope = scope, scope
	}

	slog.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	f := formatter.New(st, fieldScope, slog.Default())
	ev := evaluator.New(st, f, slog.Default())
	ev.AllowMissingFields = opts.AllowMissingFields
	ld := loader.New(src, st, pathScope, ev)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	retries := &loader.RetryQueue{}
	checker := loader.NewDuplicateIDChecker()

	if opts.Tree != "" {
		ref, refErr := src.RefFor(opts.Tree)
		if refErr != nil {
			return WrapExitError(ExitCommandError, "failed to resolve tree", refErr)
		}
		if ref == nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("no serialized item at %s", opts.Tree))
		}
		err = ld.LoadTree(ctx, ref, retries, checker)
	} else {
		err = ld.LoadAll(ctx, retries, checker, func(root *serial.Ref) {
			slog.Debug("tree loaded", "partition", root.Partition, "path", root.Path)
		})
	}
	if err != nil {
		if loader.IsConsistencyError(err) {
			return WrapExitError(ExitFailure, "consistency violation, load aborted", err)
		}
		return WrapExitError(ExitFailure, "load failed", err)
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	changes := st.Changes()
	result := LoadResult{Changes: len(changes)}
	if opts.Verbose {
		for _, c := range changes {
			result.Detail = append(result.Detail, c.String())
		}
	}

	if opts.Format == "json" {
		return out.Success(result)
	}
	for _, line := range result.Detail {
		out.VerboseLog("%s", line)
	}
	fmt.Fprintf(out.Writer, "Load complete. %d change(s) applied.\n", result.Changes)
	return nil
}
