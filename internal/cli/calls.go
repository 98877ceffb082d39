package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/revenantdb/revenant/internal/store"
)

// CallsOptions holds flags for the calls command.
type CallsOptions struct {
	*RootOptions
	Function string
	File     string
	Session  string
	Since    string
	Until    string
	Limit    int
}

// CallInfo is one call in the listing.
type CallInfo struct {
	ID        string     `json:"id" yaml:"id"`
	Function  string     `json:"function" yaml:"function"`
	File      string     `json:"file,omitempty" yaml:"file,omitempty"`
	Line      int        `json:"line,omitempty" yaml:"line,omitempty"`
	ParentID  string     `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	SessionID string     `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Start     time.Time  `json:"start" yaml:"start"`
	End       *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
	State     string     `json:"state" yaml:"state"`
}

// NewCallsCommand creates the calls command.
func NewCallsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Search recorded function calls",
		Long: `Search recorded function calls by function name, file, session, or
time range. Deleted calls never match. Output is ordered by start time.

An open call whose process has exited is reported as "open (abandoned?)":
the store cannot tell a running call from one whose host died.

Examples:
  revenant calls --db ./revenant.db --function myapp.handlers.login
  revenant calls --db ./revenant.db --file handlers.py --limit 20
  revenant calls --db ./revenant.db --since 2026-08-01T00:00:00Z --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalls(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Function, "function", "", "exact qualified function name")
	cmd.Flags().StringVar(&opts.File, "file", "", "substring of the source file path")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id")
	cmd.Flags().StringVar(&opts.Since, "since", "", "calls starting at or after (RFC 3339)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "calls starting at or before (RFC 3339)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of calls (0 = unlimited)")

	return cmd
}

func runCalls(opts *CallsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	filter := store.CallFilter{
		Function:  opts.Function,
		File:      opts.File,
		SessionID: opts.Session,
		Limit:     opts.Limit,
	}
	var err error
	if filter.Since, err = parseTimeFlag("since", opts.Since); err != nil {
		return err
	}
	if filter.Until, err = parseTimeFlag("until", opts.Until); err != nil {
		return err
	}

	dbPath, err := requireDatabase(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	calls, err := st.SearchCalls(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to search calls", err)
	}

	infos := make([]CallInfo, 0, len(calls))
	for _, c := range calls {
		infos = append(infos, callInfo(c))
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format != "text" {
		return out.Success(infos)
	}

	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No matching calls.")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(w, "%s  %-40s  %s  %s\n",
			truncateID(info.ID), info.Function,
			info.Start.Format(time.RFC3339), info.State)
		if opts.Verbose {
			fmt.Fprintf(w, "%18s%s:%d\n", "", info.File, info.Line)
		}
	}
	return nil
}

func callInfo(c store.Call) CallInfo {
	info := CallInfo{
		ID:        c.ID,
		Function:  c.Function,
		File:      c.File,
		Line:      c.Line,
		ParentID:  c.ParentID,
		SessionID: c.SessionID,
		Start:     c.Start,
		State:     string(c.State),
	}
	if !c.End.IsZero() {
		end := c.End
		info.End = &end
	}
	if c.Abandoned() {
		info.State = "open (abandoned?)"
	}
	return info
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s: want RFC 3339", name), err)
	}
	return t, nil
}
