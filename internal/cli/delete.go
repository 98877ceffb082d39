package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revenantdb/revenant/internal/store"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	CallID string
	GC     bool
}

// DeleteResult reports what a delete did.
type DeleteResult struct {
	CallID    string `json:"call_id" yaml:"call_id"`
	Deleted   bool   `json:"deleted" yaml:"deleted"`
	Collected int64  `json:"collected,omitempty" yaml:"collected,omitempty"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a recorded call",
		Long: `Delete one call: its snapshots are removed, its value references are
released, and its children are re-parented to the root. The deletion
does not cascade. A tombstone row keeps the id from being reused.

Released values whose reference count reaches zero are removed by the
next garbage collection; pass --gc to run one immediately.

Examples:
  revenant delete --db ./revenant.db --call 6e4b...
  revenant delete --db ./revenant.db --call 6e4b... --gc`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CallID, "call", "", "call id (required)")
	_ = cmd.MarkFlagRequired("call")
	cmd.Flags().BoolVar(&opts.GC, "gc", false, "collect unreferenced values afterwards")

	return cmd
}

func runDelete(opts *DeleteOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	dbPath, err := requireDatabase(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.DeleteCall(ctx, opts.CallID); err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("delete call %s", opts.CallID), err)
	}

	result := DeleteResult{CallID: opts.CallID, Deleted: true}
	if opts.GC {
		collected, err := st.CollectGarbage(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "garbage collection failed", err)
		}
		result.Collected = collected
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format != "text" {
		return out.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Deleted call %s\n", opts.CallID)
	if opts.GC {
		fmt.Fprintf(w, "Collected %d unreferenced objects\n", result.Collected)
	}
	return nil
}
