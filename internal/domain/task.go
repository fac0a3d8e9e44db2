package domain

import (
	"encoding/json"
	"time"
)

// TaskKind distinguishes what an outbox task pushes to the user.
type TaskKind string

const (
	TaskText         TaskKind = "text"
	TaskFile         TaskKind = "file"
	TaskButton       TaskKind = "button"
	TaskNotification TaskKind = "notification"
)

// AllTaskKinds lists every kind the outbox knows how to deliver.
var AllTaskKinds = []TaskKind{TaskText, TaskFile, TaskButton, TaskNotification}

// KnownTaskKind reports whether kind is part of the closed enumeration.
func KnownTaskKind(kind TaskKind) bool {
	for _, known := range AllTaskKinds {
		if kind == known {
			return true
		}
	}
	return false
}

// TaskStatus is the outbox task state machine.
//
//	pending -> pending   delivery failed, retries remain (retry_count+1)
//	pending -> failed    delivery failed, retries exhausted, or permanent error
//	pending -> sent      delivery succeeded
//
// sent and failed are terminal. No transition leaves a terminal state.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskSent    TaskStatus = "sent"
	TaskFailed  TaskStatus = "failed"
)

// DefaultMaxRetries is the delivery attempt budget for a new outbox task.
const DefaultMaxRetries = 4

// OutboxTask is one unit of guaranteed, retried delivery.
//
// The outbox guarantees each enqueued task is attempted until success or
// retry exhaustion; it does not prevent duplicate enqueues. The reason a
// message was produced, and the at-most-once guarantee around that reason,
// live in the delivery log consulted by the scheduler before enqueuing.
//
// INVARIANT: RetryCount is monotonically non-decreasing, and a task stops
// being picked up once RetryCount >= MaxRetries. Failed tasks stay in the
// table for operational inspection and are never deleted automatically.
type OutboxTask struct {
	ID         string
	OrderID    string
	UserID     string
	Kind       TaskKind
	Payload    json.RawMessage
	Status     TaskStatus
	RetryCount int
	MaxRetries int
	LastError  string
	CreatedAt  time.Time
	SentAt     *time.Time
}

// MessagePayload is the payload shape produced by the scheduler for text,
// file, and button tasks. Free-form payloads from other producers are passed
// through the outbox untouched.
type MessagePayload struct {
	Text       string `json:"text,omitempty"`
	Attachment string `json:"attachment,omitempty"`
	Button     string `json:"button,omitempty"`
}
