package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/revenantdb/revenant/internal/reanimate"
	"github.com/revenantdb/revenant/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	CallID string
}

// ReplayResult is the reconstructed state of one call.
type ReplayResult struct {
	CallID    string            `json:"call_id" yaml:"call_id"`
	Function  string            `json:"function" yaml:"function"`
	Locals    map[string]string `json:"locals,omitempty" yaml:"locals,omitempty"`
	Globals   map[string]string `json:"globals,omitempty" yaml:"globals,omitempty"`
	Return    string            `json:"return,omitempty" yaml:"return,omitempty"`
	HasReturn bool              `json:"has_return" yaml:"has_return"`
	Degraded  bool              `json:"degraded" yaml:"degraded"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reconstruct a call's final variable state",
		Long: `Reconstruct the locals, globals, and return value of a recorded call.

When the call has line snapshots, the last snapshot's bindings are used:
they are the call's final observed state. Shared and cyclic structures
come back shared and cyclic. Values that could not be captured
faithfully appear as stubs and mark the result degraded.

Examples:
  revenant replay --db ./revenant.db --call 6e4b...
  revenant replay --db ./revenant.db --call 6e4b... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CallID, "call", "", "call id (required)")
	_ = cmd.MarkFlagRequired("call")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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

	engine := reanimate.New(st)
	res, err := engine.ReanimateCall(ctx, opts.CallID)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("replay call %s", opts.CallID), err)
	}

	result := ReplayResult{
		CallID:    res.CallID,
		Function:  res.Function,
		Locals:    renderValueMap(res.Locals),
		Globals:   renderValueMap(res.Globals),
		HasReturn: res.HasReturn,
		Degraded:  res.Degraded,
	}
	if res.HasReturn {
		result.Return = reanimate.Render(res.Return)
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
	fmt.Fprintf(w, "Replay of %s (%s)\n", result.Function, truncateID(result.CallID))
	if result.Degraded {
		fmt.Fprintln(w, "Note: some values were not captured faithfully (degraded)")
	}
	printReplayBindings(w, "Locals", result.Locals)
	printReplayBindings(w, "Globals", result.Globals)
	if result.HasReturn {
		fmt.Fprintf(w, "\nReturn: %s\n", result.Return)
	}
	return nil
}

func renderValueMap(values map[string]any) map[string]string {
	if len(values) == 0 {
		return nil
	}
	rendered := make(map[string]string, len(values))
	for name, v := range values {
		rendered[name] = reanimate.Render(v)
	}
	return rendered
}

func printReplayBindings(w io.Writer, title string, bindings map[string]string) {
	if len(bindings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %s\n", name, bindings[name])
	}
}
