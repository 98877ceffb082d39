package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "text" | "json" | "yaml"
	Database string
	Config   string // optional CUE config file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the revenant CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "revenant",
		Short: "Revenant - execution history database",
		Long: `Inspect and reanimate recorded program executions.

Revenant stores function calls, line snapshots, and every variable value
they referenced, content-addressed and deduplicated, in a SQLite database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.Config)
			if err != nil {
				return err
			}
			applyConfig(opts, cfg, cmd)

			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to CUE config file (default: revenant.cue if present)")

	// Add subcommands
	cmd.AddCommand(NewSessionsCommand(opts))
	cmd.AddCommand(NewCallsCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewGCCommand(opts))

	return cmd
}

// applyConfig fills in options the user did not set on the command line.
// Flags always win over the config file.
func applyConfig(opts *RootOptions, cfg *Config, cmd *cobra.Command) {
	if cfg == nil {
		return
	}
	if opts.Database == "" && cfg.Database != "" {
		opts.Database = cfg.Database
	}
	if !cmd.PersistentFlags().Changed("format") && cfg.Format != "" {
		opts.Format = cfg.Format
	}
	if !cmd.PersistentFlags().Changed("verbose") && cfg.Verbose {
		opts.Verbose = true
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// requireDatabase returns the database path or a command error when none was
// given by flag or config.
func requireDatabase(opts *RootOptions) (string, error) {
	if opts.Database == "" {
		return "", NewExitError(ExitCommandError, "no database: pass --db or set database in revenant.cue")
	}
	return opts.Database, nil
}
