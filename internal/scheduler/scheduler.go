// Package scheduler is the matching and firing engine. Each tick it finds
// every message whose moment has arrived, claims it against the store's
// dedup authority, and hands the rendered result to the outbox.
//
// A tick is stateless: everything it needs is read fresh from the store, so
// ticks are safe to run concurrently and safe to skip. Missed ticks delay
// messages; they never lose or duplicate them.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kpetrov/driplane/internal/clock"
	"github.com/kpetrov/driplane/internal/domain"
	"github.com/kpetrov/driplane/internal/outbox"
	"github.com/kpetrov/driplane/internal/render"
	"github.com/kpetrov/driplane/internal/store"
)

// DefaultDripBatchSize caps how many due direct messages one tick picks up.
const DefaultDripBatchSize = 100

// TickReport summarizes one matching pass for telemetry and tests.
type TickReport struct {
	// Candidates counts triggers whose moment had arrived this tick.
	Candidates int
	// Fired counts triggers that won their claim and enqueued a task.
	Fired int
	// Deduped counts triggers that lost their claim to an earlier tick.
	Deduped int
	// Failed counts triggers that errored; they stay claimable and the
	// next tick retries them.
	Failed int
}

// Scheduler matches active timers against templates and fires due messages.
type Scheduler struct {
	store     *store.Store
	queue     *outbox.Queue
	renderer  render.Renderer
	clock     clock.Clock
	dripBatch int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDripBatchSize sets how many due direct messages one tick picks up.
func WithDripBatchSize(n int) Option {
	return func(s *Scheduler) {
		s.dripBatch = n
	}
}

// New creates a scheduler.
func New(st *store.Store, q *outbox.Queue, r render.Renderer, c clock.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     st,
		queue:     q,
		renderer:  r,
		clock:     c,
		dripBatch: DefaultDripBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick performs one matching pass: collect due triggers from both paths,
// order them, fire each one. Returns an error only when collection itself
// fails; firing errors are isolated per trigger and reported in the count.
//
// Duplicate protection does not live here. Every trigger is claimed through
// a store-level write that at most one caller can win, so overlapping ticks
// and crash-replayed ticks converge on exactly one task per trigger.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	now := s.clock.Now()

	triggers, err := s.collectTimerTriggers(ctx, now)
	if err != nil {
		return report, fmt.Errorf("tick: %w", err)
	}

	direct, err := s.collectDirectTriggers(ctx, now)
	if err != nil {
		return report, fmt.Errorf("tick: %w", err)
	}
	triggers = append(triggers, direct...)
	sortTriggers(triggers)

	orders := map[string]domain.Order{}
	for _, trg := range triggers {
		report.Candidates++
		switch trg.kind {
		case triggerTimer:
			s.fireTimer(ctx, trg, now, orders, &report)
		case triggerDirect:
			s.fireDirect(ctx, trg, &report)
		}
	}

	if report.Candidates > 0 {
		slog.Info("scheduler tick finished",
			"candidates", report.Candidates,
			"fired", report.Fired,
			"deduped", report.Deduped,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// collectTimerTriggers crosses active timers with active templates and keeps
// the compatible pairs whose delay has elapsed and that have not fired yet.
//
// The fired-set lookup here is an optimization that keeps already-sent pairs
// out of the rendering path; the authoritative duplicate check is the
// delivery log insert inside fireTimer.
func (s *Scheduler) collectTimerTriggers(ctx context.Context, now time.Time) ([]trigger, error) {
	timers, err := s.store.ListActiveTimers(ctx)
	if err != nil {
		return nil, err
	}
	if len(timers) == 0 {
		return nil, nil
	}

	templates, err := s.store.ListActiveTemplates(ctx)
	if err != nil {
		return nil, err
	}

	timerIDs := make([]string, len(timers))
	for i, t := range timers {
		timerIDs[i] = t.ID
	}
	fired, err := s.store.ListTimerDeliveries(ctx, timerIDs)
	if err != nil {
		return nil, err
	}

	var triggers []trigger
	for _, tm := range timers {
		for _, tmpl := range templates {
			if !domain.StepCompatible(tm.Step, tm.Product, tmpl.Step) {
				continue
			}
			if now.Before(tm.StartedAt.Add(tmpl.Delay())) {
				continue
			}
			key := store.DeliveredKey{TimerID: tm.ID, TemplateID: tmpl.ID, DelayMinutes: tmpl.DelayMinutes}
			if fired[key] {
				continue
			}
			triggers = append(triggers, trigger{
				kind:         triggerTimer,
				anchor:       tm.StartedAt,
				delayMinutes: tmpl.DelayMinutes,
				timer:        tm,
				template:     tmpl,
			})
		}
	}
	return triggers, nil
}

// collectDirectTriggers picks up self-scheduled drip messages whose absolute
// fire time has passed.
func (s *Scheduler) collectDirectTriggers(ctx context.Context, now time.Time) ([]trigger, error) {
	due, err := s.store.ListDueDripMessages(ctx, now, s.dripBatch)
	if err != nil {
		return nil, err
	}

	triggers := make([]trigger, 0, len(due))
	for _, m := range due {
		triggers = append(triggers, trigger{
			kind:   triggerDirect,
			anchor: m.ScheduledAt,
			drip:   m,
		})
	}
	return triggers, nil
}

// fireTimer renders, claims, and enqueues one timer-matched template.
//
// Order of operations matters: rendering happens before the claim so that a
// render failure leaves no delivery log row and the pair is retried next
// tick. Once the claim is written the trigger is spent; an enqueue failure
// after that point is logged loudly but not undone, because reopening the
// claim would trade a missing message for a possible duplicate.
func (s *Scheduler) fireTimer(ctx context.Context, trg trigger, now time.Time, orders map[string]domain.Order, report *TickReport) {
	order, ok := orders[trg.timer.OrderID]
	if !ok {
		var err error
		order, err = s.store.GetOrder(ctx, trg.timer.OrderID)
		if err != nil {
			report.Failed++
			slog.Error("load order for firing failed",
				"error", err,
				"order_id", trg.timer.OrderID,
				"template_id", trg.template.ID,
			)
			return
		}
		orders[trg.timer.OrderID] = order
	}

	text, err := s.renderer.Render(trg.template, order)
	if err != nil {
		report.Failed++
		slog.Error("render failed",
			"error", err,
			"order_id", order.ID,
			"template_id", trg.template.ID,
		)
		return
	}

	inserted, err := s.store.RecordTimerDelivery(ctx, trg.timer.ID, trg.template.ID, trg.template.DelayMinutes, trg.timer.UserID, trg.timer.OrderID, now)
	if err != nil {
		report.Failed++
		slog.Error("delivery claim failed",
			"error", err,
			"timer_id", trg.timer.ID,
			"template_id", trg.template.ID,
		)
		return
	}
	if !inserted {
		report.Deduped++
		slog.Debug("trigger already claimed",
			"timer_id", trg.timer.ID,
			"template_id", trg.template.ID,
			"delay_minutes", trg.template.DelayMinutes,
		)
		return
	}

	payload, err := buildPayload(trg.template.Kind, text, trg.template.Attachment)
	if err != nil {
		report.Failed++
		slog.Error("payload build failed", "error", err, "template_id", trg.template.ID)
		return
	}
	if _, err := s.queue.Enqueue(ctx, trg.timer.OrderID, trg.timer.UserID, trg.template.Kind, payload); err != nil {
		report.Failed++
		slog.Error("enqueue after claim failed, message lost",
			"error", err,
			"timer_id", trg.timer.ID,
			"template_id", trg.template.ID,
		)
		return
	}

	report.Fired++
	slog.Info("message fired",
		"order_id", trg.timer.OrderID,
		"user_id", trg.timer.UserID,
		"step", trg.timer.Step,
		"template_id", trg.template.ID,
		"delay_minutes", trg.template.DelayMinutes,
	)
}

// fireDirect claims and enqueues one self-scheduled drip message. The row's
// pending-to-sent flip is the claim; its body is already concrete, so there
// is nothing to render.
func (s *Scheduler) fireDirect(ctx context.Context, trg trigger, report *TickReport) {
	claimed, err := s.store.ClaimDripMessage(ctx, trg.drip.ID)
	if err != nil {
		report.Failed++
		slog.Error("drip claim failed", "error", err, "drip_id", trg.drip.ID)
		return
	}
	if !claimed {
		report.Deduped++
		slog.Debug("drip already claimed", "drip_id", trg.drip.ID)
		return
	}

	payload, err := buildPayload(trg.drip.Kind, trg.drip.Body, trg.drip.Attachment)
	if err != nil {
		report.Failed++
		slog.Error("payload build failed", "error", err, "drip_id", trg.drip.ID)
		return
	}
	if _, err := s.queue.Enqueue(ctx, trg.drip.OrderID, trg.drip.UserID, trg.drip.Kind, payload); err != nil {
		report.Failed++
		slog.Error("enqueue after claim failed, message lost",
			"error", err,
			"drip_id", trg.drip.ID,
		)
		return
	}

	report.Fired++
	slog.Info("drip message fired",
		"drip_id", trg.drip.ID,
		"order_id", trg.drip.OrderID,
		"user_id", trg.drip.UserID,
		"tag", trg.drip.Tag,
	)
}

// buildPayload assembles the outbox payload for one message. Button
// templates carry their target in the attachment column.
func buildPayload(kind domain.TaskKind, text, attachment string) (json.RawMessage, error) {
	p := domain.MessagePayload{Text: text}
	switch kind {
	case domain.TaskButton:
		p.Button = attachment
	default:
		p.Attachment = attachment
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return raw, nil
}
