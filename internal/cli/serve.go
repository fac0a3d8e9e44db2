package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/kpetrov/driplane/internal/clock"
	"github.com/kpetrov/driplane/internal/config"
	"github.com/kpetrov/driplane/internal/ids"
	"github.com/kpetrov/driplane/internal/outbox"
	"github.com/kpetrov/driplane/internal/render"
	"github.com/kpetrov/driplane/internal/scheduler"
	"github.com/kpetrov/driplane/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine: scheduler ticks and outbox delivery on a cron",
		Long: `Run the engine: scheduler ticks and outbox delivery on a cron.

Without --config the engine runs on defaults: the database from --db and
a tick every minute for both the scheduler and the outbox. Stops cleanly
on SIGINT/SIGTERM; a tick in flight finishes before shutdown.

Example:
  driplane serve --config driplane.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	return cmd
}

func serve(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := config.Default()
	cfg.DBPath = opts.DBPath
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = loaded
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer s.Close()

	clk := clock.System{}
	gen := ids.UUIDv7Generator{}
	queue := outbox.NewQueue(s, clk, gen, outbox.WithMaxRetries(cfg.MaxRetries))
	sched := scheduler.New(s, queue, render.Placeholder{}, clk,
		scheduler.WithDripBatchSize(cfg.DripBatchSize))
	deliverer := outbox.NewDeliverer(s, outbox.LogTransport{}, clk,
		outbox.WithBatchSize(cfg.OutboxBatchSize))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New()
	if _, err := c.AddFunc(cfg.SchedulerCron, func() {
		if _, err := sched.Tick(ctx); err != nil {
			slog.Error("scheduler tick failed", "error", err)
		}
	}); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid scheduler cron %q", cfg.SchedulerCron), err)
	}
	if _, err := c.AddFunc(cfg.OutboxCron, func() {
		if _, err := deliverer.RunOnce(ctx); err != nil {
			slog.Error("delivery pass failed", "error", err)
		}
	}); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid outbox cron %q", cfg.OutboxCron), err)
	}

	c.Start()
	slog.Info("engine started",
		"db", cfg.DBPath,
		"scheduler_cron", cfg.SchedulerCron,
		"outbox_cron", cfg.OutboxCron,
	)

	// Run a first pass immediately: after a restart there may be a backlog
	// and waiting up to a minute for the first cron firing helps nobody.
	if _, err := sched.Tick(ctx); err != nil {
		slog.Error("initial tick failed", "error", err)
	}
	if _, err := deliverer.RunOnce(ctx); err != nil {
		slog.Error("initial delivery pass failed", "error", err)
	}

	<-ctx.Done()
	slog.Info("shutting down")
	<-c.Stop().Done()
	return nil
}
