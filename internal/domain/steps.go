package domain

// StepKey identifies a point in an order's lifecycle that timers and
// templates refer to. It is related to, but not identical to, OrderStatus:
// one raw status can stand for two logically distinct steps depending on the
// product type, and the fan-out aliases below exist so templates can address
// "song demo received" and "book demo received" separately even though the
// upstream status is shared.
type StepKey string

const (
	StepNew                 StepKey = "new"
	StepCollectingFacts     StepKey = "collecting_facts"
	StepSongCollectingFacts StepKey = "song_collecting_facts"
	StepBookCollectingFacts StepKey = "book_collecting_facts"
	StepSongDemoSent        StepKey = "song_demo_sent"
	StepBookDemoSent        StepKey = "book_demo_sent"
	StepAwaitingPayment     StepKey = "awaiting_payment"
)

// AllStepKeys lists every step key templates may address.
// Used by template seed validation.
var AllStepKeys = []StepKey{
	StepNew,
	StepCollectingFacts,
	StepSongCollectingFacts,
	StepBookCollectingFacts,
	StepSongDemoSent,
	StepBookDemoSent,
	StepAwaitingPayment,
}

// KnownStepKey reports whether step is part of the closed step enumeration.
func KnownStepKey(step StepKey) bool {
	for _, known := range AllStepKeys {
		if step == known {
			return true
		}
	}
	return false
}

// stepForStatus is the literal mapping from a non-terminal status to the
// timer step it starts. StatusDemoSent is absent on purpose: it fans out by
// product type and is handled explicitly in ResolveStepKey. Terminal
// statuses are absent because they never start a timer.
var stepForStatus = map[OrderStatus]StepKey{
	StatusNew:             StepNew,
	StatusCollectingFacts: StepCollectingFacts,
	StatusAwaitingPayment: StepAwaitingPayment,
}

// demoStepForProduct is the fan-out table for StatusDemoSent.
var demoStepForProduct = map[ProductType]StepKey{
	ProductSong: StepSongDemoSent,
	ProductBook: StepBookDemoSent,
}

// ResolveStepKey maps a raw order status to the effective timer step key.
//
// Most statuses map one to one. StatusDemoSent fans out to a per-product
// alias; with an unknown product type the status cannot be resolved and
// ok is false. Terminal statuses and statuses outside the literal tables
// also report ok=false. Callers must treat ok=false as "unmapped" and skip
// timer creation rather than guessing a default step.
func ResolveStepKey(status OrderStatus, product ProductType) (StepKey, bool) {
	if status == StatusDemoSent {
		step, ok := demoStepForProduct[product]
		return step, ok
	}
	step, ok := stepForStatus[status]
	return step, ok
}

// terminalStatuses lists every status after which no further lifecycle
// nudges should be sent. Entering one of these deactivates all timers for
// the (user, order) pair and suppresses new timer creation.
//
// StatusPaid and StatusInProduction are terminal for nudging purposes even
// though the order itself is still moving: once the customer has paid, the
// remaining stages are on the business, not on the customer.
var terminalStatuses = map[OrderStatus]bool{
	StatusPaid:         true,
	StatusInProduction: true,
	StatusDelivered:    true,
	StatusCompleted:    true,
	StatusCancelled:    true,
	StatusRefunded:     true,
}

// IsTerminalStatus reports whether entering status must stop all timers.
func IsTerminalStatus(status OrderStatus) bool {
	return terminalStatuses[status]
}

// stepAliasPairs is the literal set of special-case timer/template pairings.
// A timer sitting at the generic collecting_facts step matches only the
// per-product template step for its product line. Every pairing not listed
// here is plain equality between the timer step and the template step.
var stepAliasPairs = map[StepKey]map[ProductType]StepKey{
	StepCollectingFacts: {
		ProductSong: StepSongCollectingFacts,
		ProductBook: StepBookCollectingFacts,
	},
}

// StepCompatible reports whether a template addressed to templateStep may
// fire against a timer at timerStep for the given product type.
//
// The relation is not simple equality: the alias table above routes generic
// timer steps to per-product template steps. A timer step that appears in
// the alias table matches only its alias; in particular, a collecting_facts
// timer with an unknown product type matches nothing at all.
func StepCompatible(timerStep StepKey, product ProductType, templateStep StepKey) bool {
	if aliases, ok := stepAliasPairs[timerStep]; ok {
		alias, ok := aliases[product]
		return ok && alias == templateStep
	}
	return timerStep == templateStep
}
