package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revenantdb/revenant/internal/store"
)

// GCOptions holds flags for the gc command.
type GCOptions struct {
	*RootOptions
}

// GCResult reports what a garbage collection did.
type GCResult struct {
	Collected int64 `json:"collected" yaml:"collected"`
}

// NewGCCommand creates the gc command.
func NewGCCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GCOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove unreferenced values from the object store",
		Long: `Remove stored values whose reference count has reached zero, cascading
through the children they referenced, until nothing more is collectable.

Safe to run at any time: values still referenced by a call, snapshot,
or version chain are never removed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGC(opts, cmd)
		},
	}

	return cmd
}

func runGC(opts *GCOptions, cmd *cobra.Command) error {
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

	collected, err := st.CollectGarbage(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "garbage collection failed", err)
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format != "text" {
		return out.Success(GCResult{Collected: collected})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Collected %d unreferenced objects\n", collected)
	return nil
}
