package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/revenantdb/revenant/internal/reanimate"
	"github.com/revenantdb/revenant/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Identity string
	Render   bool
}

// HistoryEntry is one observation in an identity's version chain.
type HistoryEntry struct {
	Seq       int64     `json:"seq" yaml:"seq"`
	Hash      string    `json:"hash" yaml:"hash"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Value     string    `json:"value,omitempty" yaml:"value,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the version history of a tracked identity",
		Long: `Show every recorded observation of a tracked variable identity, in
order. Consecutive observations may carry the same hash: the chain
records observations, not changes.

Examples:
  revenant history --db ./revenant.db --identity myapp.state.counter
  revenant history --db ./revenant.db --identity myapp.state.counter --render`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Identity, "identity", "", "identity key to inspect (required)")
	_ = cmd.MarkFlagRequired("identity")
	cmd.Flags().BoolVar(&opts.Render, "render", false, "render each version's value")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
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

	history, err := st.History(ctx, opts.Identity)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load history", err)
	}

	engine := reanimate.New(st)
	cache := reanimate.Cache{}

	entries := make([]HistoryEntry, 0, len(history))
	for _, v := range history {
		entry := HistoryEntry{Seq: v.Seq, Hash: v.Hash, Timestamp: v.Timestamp}
		if opts.Render {
			val, _, err := engine.Materialize(ctx, v.Hash, cache)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to render version %d", v.Seq), err)
			}
			entry.Value = reanimate.Render(val)
		}
		entries = append(entries, entry)
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format != "text" {
		return out.Success(entries)
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(w, "No history for identity: %s\n", opts.Identity)
		return nil
	}
	fmt.Fprintf(w, "History for %s (%d versions):\n", opts.Identity, len(entries))
	for _, entry := range entries {
		fmt.Fprintf(w, "  [%d] %s  %s\n", entry.Seq, truncateID(entry.Hash), entry.Timestamp.Format(time.RFC3339Nano))
		if entry.Value != "" {
			fmt.Fprintf(w, "      %s\n", entry.Value)
		}
	}
	return nil
}
