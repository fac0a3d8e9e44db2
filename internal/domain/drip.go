package domain

import "time"

// DripStatus is the lifecycle of a directly scheduled drip message.
type DripStatus string

const (
	DripPending DripStatus = "pending"
	DripSent    DripStatus = "sent"
)

// DripMessage is the direct scheduling path: a message that carries its own
// absolute fire time, computed once at creation as created_at plus the
// delay, instead of being anchored to a step timer.
//
// There is no separate dedup table for this path. The row's own Status field
// is the dedup marker: the scheduler claims a due message by flipping
// pending to sent, and a claim that affects zero rows means another tick got
// there first.
//
// Stale-trigger cleanup deletes pending rows whose Tag the order's new
// status obsoletes; sent rows are history and are never deleted.
type DripMessage struct {
	ID          int64
	OrderID     string
	UserID      string
	Tag         MessageTag
	Kind        TaskKind
	Body        string
	Attachment  string
	Status      DripStatus
	ScheduledAt time.Time
	CreatedAt   time.Time
}
