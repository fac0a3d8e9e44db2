package scheduler

import (
	"sort"
	"time"

	"github.com/kpetrov/driplane/internal/domain"
)

// triggerKind distinguishes the two ways a message becomes ready to fire.
type triggerKind int

const (
	// triggerTimer is the step-timer path: an active timer matched an
	// active template and the template's delay has elapsed.
	triggerTimer triggerKind = iota + 1

	// triggerDirect is the self-scheduled path: a drip message carrying
	// its own absolute fire time that has passed.
	triggerDirect
)

// trigger is one ready-to-fire work item. Both variants flow through the
// same sorting and firing code; only the claim step differs (delivery log
// insert versus row-status flip).
type trigger struct {
	kind triggerKind

	// anchor is the instant delay counting started from: the timer's
	// started_at, or the drip message's scheduled_at.
	anchor time.Time

	// delayMinutes orders triggers sharing an anchor; zero for direct.
	delayMinutes int

	timer    domain.StepTimer
	template domain.MessageTemplate
	drip     domain.DripMessage
}

// sortTriggers orders work items oldest anchor first, shortest delay next.
// Oldest-waiting timers get served first under a backlog, and the fixed
// order keeps test output deterministic.
func sortTriggers(triggers []trigger) {
	sort.SliceStable(triggers, func(i, j int) bool {
		if !triggers[i].anchor.Equal(triggers[j].anchor) {
			return triggers[i].anchor.Before(triggers[j].anchor)
		}
		return triggers[i].delayMinutes < triggers[j].delayMinutes
	})
}
