package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kpetrov/driplane/internal/domain"
)

// inspectSubjects maps each inspectable view to its renderer.
var inspectSubjects = []string{"timers", "history", "drips", "outbox", "deliveries"}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <subject> <order-id>",
		Short: "Inspect the engine's state for one order",
		Long: `Inspect the engine's state for one order.

Subjects:
  timers      active step timers
  history     the order's status change timeline
  drips       still-pending directly scheduled messages
  outbox      pending delivery tasks
  deliveries  the append-only delivery log

Example:
  driplane inspect timers ord-42`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectOrder(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func inspectOrder(opts *RootOptions, subject, orderID string, cmd *cobra.Command) error {
	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	formatter := &OutputFormatter{Format: opts.Format, Writer: out}

	switch subject {
	case "timers":
		timers, err := s.ListActiveTimersForOrder(ctx, orderID)
		if err != nil {
			return WrapExitError(ExitFailure, "inspect timers", err)
		}
		if opts.Format == "json" {
			return formatter.Success(timers)
		}
		if len(timers) == 0 {
			fmt.Fprintln(out, "no active timers")
			return nil
		}
		for _, t := range timers {
			fmt.Fprintf(out, "%s\tuser=%s\tstep=%s\tproduct=%s\tstarted=%s\n",
				t.ID, t.UserID, t.Step, t.Product, t.StartedAt.Format(time.RFC3339))
		}
		return nil

	case "history":
		history, err := s.ListStatusHistory(ctx, orderID)
		if err != nil {
			return WrapExitError(ExitFailure, "inspect history", err)
		}
		if opts.Format == "json" {
			return formatter.Success(history)
		}
		if len(history) == 0 {
			fmt.Fprintln(out, "no status changes recorded")
			return nil
		}
		for _, h := range history {
			fmt.Fprintf(out, "%s\t%s -> %s\n",
				h.ChangedAt.Format(time.RFC3339), h.OldStatus, h.NewStatus)
		}
		return nil

	case "drips":
		drips, err := s.ListPendingDripsForOrder(ctx, orderID)
		if err != nil {
			return WrapExitError(ExitFailure, "inspect drips", err)
		}
		if opts.Format == "json" {
			return formatter.Success(drips)
		}
		if len(drips) == 0 {
			fmt.Fprintln(out, "no pending drip messages")
			return nil
		}
		for _, d := range drips {
			fmt.Fprintf(out, "%d\ttag=%s\tkind=%s\tdue=%s\n",
				d.ID, d.Tag, d.Kind, d.ScheduledAt.Format(time.RFC3339))
		}
		return nil

	case "outbox":
		tasks, err := s.ListPendingOutboxTasksForOrder(ctx, orderID)
		if err != nil {
			return WrapExitError(ExitFailure, "inspect outbox", err)
		}
		if opts.Format == "json" {
			return formatter.Success(tasks)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(out, "no pending outbox tasks")
			return nil
		}
		for _, task := range tasks {
			fmt.Fprintf(out, "%s\tuser=%s\tkind=%s\tretries=%d/%d\n",
				task.ID, task.UserID, task.Kind, task.RetryCount, task.MaxRetries)
			if task.LastError != "" {
				fmt.Fprintf(out, "\tlast error: %s\n", task.LastError)
			}
		}
		return nil

	case "deliveries":
		entries, err := s.ListDeliveriesForOrder(ctx, orderID)
		if err != nil {
			return WrapExitError(ExitFailure, "inspect deliveries", err)
		}
		if opts.Format == "json" {
			return formatter.Success(entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "no deliveries recorded")
			return nil
		}
		printDeliveries(out, entries)
		return nil

	default:
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown subject %q: must be one of %v", subject, inspectSubjects), nil)
	}
}

func printDeliveries(out io.Writer, entries []domain.DeliveryLogEntry) {
	for _, e := range entries {
		source := "direct"
		if e.TimerID != "" {
			source = "timer " + e.TimerID
		}
		fmt.Fprintf(out, "%s\ttemplate=%d\t+%dm\t%s\n",
			e.FiredAt.Format(time.RFC3339), e.TemplateID, e.DelayMinutes, source)
	}
}
