package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kpetrov/driplane/internal/domain"
)

// NewTransitionCommand creates the transition command.
func NewTransitionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition <order-id> <status>",
		Short: "Move an order to a new lifecycle status",
		Long: `Move an order to a new lifecycle status.

The status write is durable and audited; timer bookkeeping and stale
message cleanup run as side effects. Any status may follow any status,
including backward moves for operator corrections.

Example:
  driplane transition ord-42 awaiting_payment`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return transitionOrder(rootOpts, args[0], domain.OrderStatus(args[1]), cmd)
		},
	}
	return cmd
}

func transitionOrder(opts *RootOptions, orderID string, status domain.OrderStatus, cmd *cobra.Command) error {
	if !domain.KnownStatus(status) {
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown status %q: must be one of %v", status, domain.AllStatuses), nil)
	}

	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	machine := newMachine(s)
	if err := machine.Transition(cmd.Context(), orderID, status); err != nil {
		return WrapExitError(ExitFailure, "transition", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.SuccessText(
		map[string]string{"order_id": orderID, "status": string(status)},
		fmt.Sprintf("order %s moved to %s", orderID, status),
	)
}
