package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kpetrov/driplane/internal/clock"
	"github.com/kpetrov/driplane/internal/domain"
	"github.com/kpetrov/driplane/internal/ids"
	"github.com/kpetrov/driplane/internal/outbox"
)

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <order-id> <user-id> <kind> <payload>",
		Short: "Enqueue an outbox task directly, bypassing the scheduler",
		Long: `Enqueue an outbox task directly, bypassing the scheduler.

The task gets the outbox's full delivery guarantee: attempted until it
succeeds or exhausts its retries. There is no deduplication on this path;
the caller owns not enqueuing twice.

Example:
  driplane enqueue ord-42 user-7 text '{"text":"your demo is ready"}'`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueueTask(rootOpts, args[0], args[1], domain.TaskKind(args[2]), args[3], cmd)
		},
	}
	return cmd
}

func enqueueTask(opts *RootOptions, orderID, userID string, kind domain.TaskKind, payload string, cmd *cobra.Command) error {
	if !domain.KnownTaskKind(kind) {
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown kind %q: must be one of %v", kind, domain.AllTaskKinds), nil)
	}
	if !json.Valid([]byte(payload)) {
		return WrapExitError(ExitCommandError, "payload is not valid JSON", nil)
	}

	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	queue := outbox.NewQueue(s, clock.System{}, ids.UUIDv7Generator{})
	taskID, err := queue.Enqueue(cmd.Context(), orderID, userID, kind, json.RawMessage(payload))
	if err != nil {
		return WrapExitError(ExitFailure, "enqueue", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.SuccessText(
		map[string]string{"task_id": taskID},
		fmt.Sprintf("task %s enqueued for user %s", taskID, userID),
	)
}
