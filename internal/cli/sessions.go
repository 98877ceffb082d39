package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/revenantdb/revenant/internal/store"
)

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	SessionID string // optional - show one session with its calls
}

// SessionInfo is one session in the listing.
type SessionInfo struct {
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Start    time.Time         `json:"start" yaml:"start"`
	End      *time.Time        `json:"end,omitempty" yaml:"end,omitempty"`
	Calls    []string          `json:"calls,omitempty" yaml:"calls,omitempty"`
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Long: `List recorded sessions, or show one session and its calls.

Examples:
  revenant sessions --db ./revenant.db
  revenant sessions --db ./revenant.db --id 6e4b... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SessionID, "id", "", "show a single session with its linked calls")

	return cmd
}

func runSessions(opts *SessionsOptions, cmd *cobra.Command) error {
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

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.SessionID != "" {
		return showSession(ctx, st, opts.SessionID, out)
	}

	sessions, err := st.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, sessionInfo(s, nil))
	}

	if opts.Format != "text" {
		return out.Success(infos)
	}

	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(w, "%s  %-20s  %s%s\n",
			truncateID(info.ID), displayName(info.Name),
			info.Start.Format(time.RFC3339), sessionStatus(info.End))
	}
	return nil
}

func showSession(ctx context.Context, st *store.Store, id string, out *OutputFormatter) error {
	session, err := st.GetSession(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("session %s", id), err)
	}
	calls, err := st.SessionCalls(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list session calls", err)
	}

	info := sessionInfo(session, calls)
	if out.Format != "text" {
		return out.Success(info)
	}

	w := out.Writer
	fmt.Fprintf(w, "Session: %s\n", info.ID)
	if info.Name != "" {
		fmt.Fprintf(w, "Name:    %s\n", info.Name)
	}
	fmt.Fprintf(w, "Start:   %s\n", info.Start.Format(time.RFC3339))
	if info.End != nil {
		fmt.Fprintf(w, "End:     %s\n", info.End.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "End:     (open)")
	}
	if len(info.Metadata) > 0 {
		fmt.Fprintf(w, "Meta:    %s\n", formatMetadata(info.Metadata))
	}
	fmt.Fprintf(w, "Calls (%d):\n", len(info.Calls))
	for i, callID := range info.Calls {
		fmt.Fprintf(w, "  [%d] %s\n", i, callID)
	}
	return nil
}

func sessionInfo(s store.Session, calls []string) SessionInfo {
	info := SessionInfo{
		ID:       s.ID,
		Name:     s.Name,
		Metadata: s.Metadata,
		Start:    s.Start,
		Calls:    calls,
	}
	if !s.End.IsZero() {
		end := s.End
		info.End = &end
	}
	return info
}

func displayName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}

func sessionStatus(end *time.Time) string {
	if end == nil {
		return "  (open)"
	}
	return ""
}

// formatMetadata renders metadata with sorted keys for deterministic output.
func formatMetadata(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, meta[k]))
	}
	return strings.Join(parts, ", ")
}
