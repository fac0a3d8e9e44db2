package domain

import "time"

// StepTimer measures how long an order has dwelt in its current lifecycle
// step for one user.
//
// INVARIANT: at most one timer per (user, order) pair may be active at any
// observable instant. The store enforces this by deactivating every other
// timer for the pair inside the same transaction that inserts a new one.
//
// StartedAt anchors all delay computations and is never touched after
// insert. UpdatedAt changes when the engine re-touches an existing timer for
// the same step without replacing it; an incidental refresh must not reset
// the countdown.
type StepTimer struct {
	ID        string
	UserID    string
	OrderID   string
	Step      StepKey
	Product   ProductType
	StartedAt time.Time
	UpdatedAt time.Time
	Active    bool
}

// MessageTemplate describes one drip message addressed to a lifecycle step.
//
// Multiple templates may share a step key with different delays, forming a
// staggered sequence. Firing never mutates a template; only the Active flag
// controls whether it participates in future matches.
type MessageTemplate struct {
	ID           int64
	Step         StepKey
	DelayMinutes int
	Tag          MessageTag
	Kind         TaskKind
	Body         string
	Attachment   string
	Active       bool
	CreatedAt    time.Time
}

// Delay returns the template delay as a duration.
func (t MessageTemplate) Delay() time.Duration {
	return time.Duration(t.DelayMinutes) * time.Minute
}

// DeliveryLogEntry records that one (timer, template, delay) combination has
// fired. The log is append-only and never mutated: it is the engine's memory
// of what has already happened, and the authority consulted before firing.
//
// TimerID is empty for the timerless direct path, where the combination is
// keyed by (template, user, order) instead.
type DeliveryLogEntry struct {
	ID           int64
	TimerID      string
	TemplateID   int64
	DelayMinutes int
	UserID       string
	OrderID      string
	FiredAt      time.Time
}
