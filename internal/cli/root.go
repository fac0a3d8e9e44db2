// Package cli wires the engine into the driplane command line tool.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kpetrov/driplane/internal/clock"
	"github.com/kpetrov/driplane/internal/ids"
	"github.com/kpetrov/driplane/internal/lifecycle"
	"github.com/kpetrov/driplane/internal/store"
	"github.com/kpetrov/driplane/internal/timer"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the driplane CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "driplane",
		Short: "driplane - lifecycle-driven delayed messaging engine",
		Long: `An engine that follows order lifecycles and sends delayed follow-up
messages: step timers track how long an order dwells in each stage,
templates decide what to say and when, and a durable outbox delivers it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "driplane.db", "path to the SQLite database")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewTransitionCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewTemplatesCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))

	return cmd
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

// openStore opens the configured database, wrapping failures with the
// command-error exit code.
func openStore(opts *RootOptions) (*store.Store, error) {
	s, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	return s, nil
}

// newMachine builds the lifecycle machine on top of an open store.
func newMachine(s *store.Store) *lifecycle.Machine {
	clk := clock.System{}
	timers := timer.New(s, clk, ids.UUIDv7Generator{})
	return lifecycle.New(s, timers, clk)
}
