package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/revenantdb/revenant/internal/reanimate"
	"github.com/revenantdb/revenant/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	CallID    string
	Snapshots bool
	Code      bool
}

// SnapshotInfo is one line snapshot in the show output.
type SnapshotInfo struct {
	Seq     int64             `json:"seq" yaml:"seq"`
	Line    int               `json:"line" yaml:"line"`
	Locals  map[string]string `json:"locals,omitempty" yaml:"locals,omitempty"`
	Globals map[string]string `json:"globals,omitempty" yaml:"globals,omitempty"`
}

// ShowResult is the complete show output for one call.
type ShowResult struct {
	Call      CallInfo          `json:"call" yaml:"call"`
	Locals    map[string]string `json:"locals,omitempty" yaml:"locals,omitempty"`
	Globals   map[string]string `json:"globals,omitempty" yaml:"globals,omitempty"`
	Return    string            `json:"return,omitempty" yaml:"return,omitempty"`
	Children  []string          `json:"children,omitempty" yaml:"children,omitempty"`
	Snapshots []SnapshotInfo    `json:"snapshots,omitempty" yaml:"snapshots,omitempty"`
	Source    string            `json:"source,omitempty" yaml:"source,omitempty"`
	Degraded  bool              `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one recorded call in full",
		Long: `Show a single call: its entry arguments, globals, return value, child
calls, and optionally its line snapshots and the source code it ran.

Values are rendered from the object store. Values that could not be
captured faithfully appear as <unrepresentable TYPE> and mark the output
as degraded.

Examples:
  revenant show --db ./revenant.db --call 6e4b...
  revenant show --db ./revenant.db --call 6e4b... --snapshots --code`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CallID, "call", "", "call id (required)")
	_ = cmd.MarkFlagRequired("call")
	cmd.Flags().BoolVar(&opts.Snapshots, "snapshots", false, "include line snapshots")
	cmd.Flags().BoolVar(&opts.Code, "code", false, "include the recorded source code")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
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

	call, err := st.GetCall(ctx, opts.CallID)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("call %s", opts.CallID), err)
	}

	engine := reanimate.New(st)
	cache := reanimate.Cache{}

	result := ShowResult{Call: callInfo(call)}
	if result.Locals, err = renderBindings(ctx, engine, cache, call.Locals, &result.Degraded); err != nil {
		return WrapExitError(ExitCommandError, "failed to render locals", err)
	}
	if result.Globals, err = renderBindings(ctx, engine, cache, call.Globals, &result.Degraded); err != nil {
		return WrapExitError(ExitCommandError, "failed to render globals", err)
	}
	if call.ReturnRef != "" {
		v, degraded, err := engine.Materialize(ctx, call.ReturnRef, cache)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render return value", err)
		}
		result.Return = reanimate.Render(v)
		result.Degraded = result.Degraded || degraded
	}

	if result.Children, err = st.ChildCalls(ctx, opts.CallID); err != nil {
		return WrapExitError(ExitCommandError, "failed to list child calls", err)
	}

	if opts.Snapshots {
		snaps, err := st.Snapshots(ctx, opts.CallID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load snapshots", err)
		}
		for _, snap := range snaps {
			info := SnapshotInfo{Seq: snap.Seq, Line: snap.Line}
			if info.Locals, err = renderBindings(ctx, engine, cache, snap.Locals, &result.Degraded); err != nil {
				return WrapExitError(ExitCommandError, "failed to render snapshot", err)
			}
			if info.Globals, err = renderBindings(ctx, engine, cache, snap.Globals, &result.Degraded); err != nil {
				return WrapExitError(ExitCommandError, "failed to render snapshot", err)
			}
			result.Snapshots = append(result.Snapshots, info)
		}
	}

	if opts.Code && call.CodeVersionRef != "" {
		cv, err := st.GetCodeVersion(ctx, call.CodeVersionRef)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load code version", err)
		}
		result.Source = cv.Content
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
	return outputShowText(cmd, result)
}

// renderBindings materializes each binding through the shared cache and
// renders it to display form.
func renderBindings(ctx context.Context, engine *reanimate.Engine, cache reanimate.Cache, refs map[string]string, degraded *bool) (map[string]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	rendered := make(map[string]string, len(refs))
	for name, hash := range refs {
		v, d, err := engine.Materialize(ctx, hash, cache)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", name, err)
		}
		rendered[name] = reanimate.Render(v)
		*degraded = *degraded || d
	}
	return rendered, nil
}

func outputShowText(cmd *cobra.Command, result ShowResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Call:     %s\n", result.Call.ID)
	fmt.Fprintf(w, "Function: %s\n", result.Call.Function)
	if result.Call.File != "" {
		fmt.Fprintf(w, "Location: %s:%d\n", result.Call.File, result.Call.Line)
	}
	fmt.Fprintf(w, "State:    %s\n", result.Call.State)
	fmt.Fprintf(w, "Start:    %s\n", result.Call.Start.Format(time.RFC3339Nano))
	if result.Call.End != nil {
		fmt.Fprintf(w, "End:      %s\n", result.Call.End.Format(time.RFC3339Nano))
	}
	if result.Call.ParentID != "" {
		fmt.Fprintf(w, "Parent:   %s\n", result.Call.ParentID)
	}
	if result.Degraded {
		fmt.Fprintln(w, "Note:     some values were not captured faithfully (degraded)")
	}

	printBindings(w, "Arguments", result.Locals)
	printBindings(w, "Globals", result.Globals)
	if result.Return != "" {
		fmt.Fprintf(w, "\nReturn: %s\n", result.Return)
	}

	if len(result.Children) > 0 {
		fmt.Fprintf(w, "\nChildren (%d):\n", len(result.Children))
		for _, child := range result.Children {
			fmt.Fprintf(w, "  %s\n", child)
		}
	}

	if len(result.Snapshots) > 0 {
		fmt.Fprintf(w, "\nSnapshots (%d):\n", len(result.Snapshots))
		for _, snap := range result.Snapshots {
			fmt.Fprintf(w, "  [%d] line %d\n", snap.Seq, snap.Line)
			for _, name := range sortedKeys(snap.Locals) {
				fmt.Fprintf(w, "      %s = %s\n", name, snap.Locals[name])
			}
		}
	}

	if result.Source != "" {
		fmt.Fprintf(w, "\nSource:\n%s\n", result.Source)
	}
	return nil
}

func printBindings(w io.Writer, title string, bindings map[string]string) {
	if len(bindings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, name := range sortedKeys(bindings) {
		fmt.Fprintf(w, "  %s = %s\n", name, bindings[name])
	}
}

// sortedKeys returns map keys in sorted order for deterministic output.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
