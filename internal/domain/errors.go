package domain

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a referenced entity does not exist.
// It propagates to callers; a transition against a missing order is a caller
// mistake, not something the engine papers over.
type NotFoundError struct {
	// Kind names the entity type ("order", "timer", "template", "task").
	Kind string

	// ID is the identifier that was looked up.
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvariantError reports a state that the store's constraints should have
// made impossible, such as two active timers for one (user, order) pair.
//
// These are defects, not runtime conditions: they must never reach callers
// during normal operation. They exist so that integrity checks and tests can
// name exactly which invariant broke.
type InvariantError struct {
	// Code identifies the violated invariant.
	Code InvariantCode

	// Message is a human-readable description.
	Message string

	// Details carries identifying context for diagnostics.
	Details map[string]string
}

// InvariantCode categorizes invariant violations.
type InvariantCode string

const (
	// ErrCodeDuplicateActiveTimer indicates more than one active timer was
	// found for a (user, order) pair.
	ErrCodeDuplicateActiveTimer InvariantCode = "DUPLICATE_ACTIVE_TIMER"

	// ErrCodeDuplicateDelivery indicates a second delivery log row exists
	// for a (timer, template, delay) combination.
	ErrCodeDuplicateDelivery InvariantCode = "DUPLICATE_DELIVERY"

	// ErrCodeTerminalTaskMutation indicates an attempt to move an outbox
	// task out of a terminal state.
	ErrCodeTerminalTaskMutation InvariantCode = "TERMINAL_TASK_MUTATION"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvariantViolation reports whether err is (or wraps) an InvariantError.
func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// NewDuplicateActiveTimerError creates an InvariantError for a pair with
// more than one active timer.
func NewDuplicateActiveTimerError(userID, orderID string, count int) *InvariantError {
	return &InvariantError{
		Code:    ErrCodeDuplicateActiveTimer,
		Message: fmt.Sprintf("%d active timers for one (user, order) pair", count),
		Details: map[string]string{
			"user_id":  userID,
			"order_id": orderID,
		},
	}
}
