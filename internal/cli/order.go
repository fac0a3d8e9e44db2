package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kpetrov/driplane/internal/domain"
)

// OrderOptions holds flags for the order create command.
type OrderOptions struct {
	*RootOptions
	UserID  string
	Payload string
}

// NewOrderCommand creates the order command group.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage orders",
	}
	cmd.AddCommand(newOrderCreateCommand(rootOpts))
	return cmd
}

func newOrderCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <order-id>",
		Short: "Register a new order and start its first step timer",
		Long: `Register a new order and start its first step timer.

Creation is idempotent: re-running for an existing order refreshes the
timer of whatever step the order currently sits at without resetting it.

Example:
  driplane order create ord-42 --user user-7 --payload '{"product_type":"song","name":"Lena"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return createOrder(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user the order belongs to (required)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "order payload as JSON")
	cmd.MarkFlagRequired("user")

	return cmd
}

func createOrder(opts *OrderOptions, orderID string, cmd *cobra.Command) error {
	if !json.Valid([]byte(opts.Payload)) {
		return WrapExitError(ExitCommandError, "invalid --payload JSON", nil)
	}

	s, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	machine := newMachine(s)
	err = machine.Intake(cmd.Context(), domain.Order{
		ID:      orderID,
		UserID:  opts.UserID,
		Status:  domain.StatusNew,
		Payload: json.RawMessage(opts.Payload),
	})
	if err != nil {
		return WrapExitError(ExitFailure, "create order", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.SuccessText(
		map[string]string{"order_id": orderID, "user_id": opts.UserID},
		fmt.Sprintf("order %s registered for user %s", orderID, opts.UserID),
	)
}
