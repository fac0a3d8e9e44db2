package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Transport pushes a payload to a user over the actual chat channel.
// The outbox interprets the returned error to decide between retrying and
// giving up; everything else about delivery is the transport's business.
type Transport interface {
	Send(ctx context.Context, userID string, payload json.RawMessage) error
}

// PermanentDeliveryError marks a delivery failure that no retry can fix,
// such as the user having blocked the bot. The deliverer short-circuits the
// task straight to failed without consuming its retry budget.
//
// Any other error from Transport.Send is treated as transient and retried.
type PermanentDeliveryError struct {
	Reason string
}

// Error implements the error interface.
func (e *PermanentDeliveryError) Error() string {
	return fmt.Sprintf("permanent delivery failure: %s", e.Reason)
}

// IsPermanent reports whether err is (or wraps) a PermanentDeliveryError.
func IsPermanent(err error) bool {
	var pe *PermanentDeliveryError
	return errors.As(err, &pe)
}

// LogTransport is a stand-in transport that logs instead of sending.
// Used by the CLI when no real channel is configured, and handy in
// development: the engine's behavior stays fully observable without a chat
// backend.
type LogTransport struct{}

// Send implements Transport.
func (LogTransport) Send(ctx context.Context, userID string, payload json.RawMessage) error {
	slog.Info("message delivered (log transport)",
		"user_id", userID,
		"payload", string(payload),
	)
	return nil
}
