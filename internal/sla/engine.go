// Package sla maintains per-ticket SLA timers: due dates from the active
// policy, pause and resume on status changes, and breach detection.
package sla

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Engine applies SLA rules. Per-ticket operations take the repositories of the
// caller's transaction and silently do nothing when the ticket has no timer.
type Engine struct {
	store      repository.Store
	clock      clock.Clock
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewEngine wires the engine.
func NewEngine(store repository.Store, clk clock.Clock, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		clock:      clk,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// Now exposes the engine clock so callers stamp records consistently.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// InitializeTimer creates the ticket's timer from the active policy for its
// priority. It returns nil when no policy applies.
func (e *Engine) InitializeTimer(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket) (*domain.SLATimer, error) {
	policy, err := repos.Policies.ActiveForPriority(ctx, ticket.Priority)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	timer := &domain.SLATimer{
		TicketID:           ticket.ID,
		PolicyID:           policy.ID,
		FirstResponseDueAt: now.Add(policy.FirstResponseWindow()),
		ResolutionDueAt:    now.Add(policy.ResolutionWindow()),
	}
	if err := repos.Timers.Create(ctx, timer); err != nil {
		return nil, err
	}
	return timer, nil
}

// RecordFirstResponse stamps the first agent response once. The breach flag is
// decided at that moment.
func (e *Engine) RecordFirstResponse(ctx context.Context, repos repository.Repositories, ticketID string) error {
	timer, err := e.activeTimer(ctx, repos, ticketID)
	if err != nil || timer == nil || timer.FirstRespondedAt != nil {
		return err
	}

	now := e.clock.Now()
	timer.FirstRespondedAt = &now
	if now.After(timer.FirstResponseDueAt) {
		timer.FirstResponseBreached = true
	}
	return repos.Timers.Update(ctx, timer)
}

// RecordResolution stamps the resolution once. A paused timer is graded at the
// moment it was paused rather than now.
func (e *Engine) RecordResolution(ctx context.Context, repos repository.Repositories, ticketID string) error {
	timer, err := e.activeTimer(ctx, repos, ticketID)
	if err != nil || timer == nil || timer.ResolvedAt != nil {
		return err
	}

	now := e.clock.Now()
	effective := now
	if timer.PausedAt != nil {
		effective = *timer.PausedAt
	}
	timer.ResolvedAt = &now
	if effective.After(timer.ResolutionDueAt) {
		timer.ResolutionBreached = true
	}
	return repos.Timers.Update(ctx, timer)
}

// HandleStatusChange pauses the clock when a ticket enters PENDING or ON_HOLD
// and resumes it when the ticket leaves them. Resuming slides every open due
// date forward by the paused duration.
func (e *Engine) HandleStatusChange(ctx context.Context, repos repository.Repositories, ticketID string, oldStatus, newStatus domain.TicketStatus) error {
	wasPaused, nowPaused := oldStatus.PausesSLA(), newStatus.PausesSLA()
	if wasPaused == nowPaused {
		return nil
	}
	timer, err := e.activeTimer(ctx, repos, ticketID)
	if err != nil || timer == nil {
		return err
	}

	now := e.clock.Now()
	switch {
	case nowPaused:
		if timer.PausedAt != nil {
			return nil
		}
		timer.PausedAt = &now
	default:
		if timer.PausedAt == nil {
			return nil
		}
		elapsed := now.Sub(*timer.PausedAt).Truncate(time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		timer.TotalPausedSeconds += int64(elapsed / time.Second)
		timer.PausedAt = nil
		if timer.FirstRespondedAt == nil {
			timer.FirstResponseDueAt = timer.FirstResponseDueAt.Add(elapsed)
		}
		if timer.ResolvedAt == nil {
			timer.ResolutionDueAt = timer.ResolutionDueAt.Add(elapsed)
		}
	}
	return repos.Timers.Update(ctx, timer)
}

// CancelTimer detaches the ticket's timer from breach sweeps.
func (e *Engine) CancelTimer(ctx context.Context, repos repository.Repositories, ticketID string) error {
	return repos.Timers.CancelForTicket(ctx, ticketID, e.clock.Now())
}

// activeTimer returns the ticket's timer, or nil when it is absent or cancelled.
func (e *Engine) activeTimer(ctx context.Context, repos repository.Repositories, ticketID string) (*domain.SLATimer, error) {
	timer, err := repos.Timers.GetByTicketForUpdate(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if timer.CancelledAt != nil {
		return nil, nil
	}
	return timer, nil
}

// BreachReport lists the tickets newly flagged by one sweep.
type BreachReport struct {
	FirstResponse []string `json:"first_response"`
	Resolution    []string `json:"resolution"`
}

// Total returns the number of newly flagged targets.
func (r BreachReport) Total() int {
	return len(r.FirstResponse) + len(r.Resolution)
}

// CheckBreaches flags every running timer that is past due. Paused, cancelled,
// completed and already flagged timers are left alone, so the sweep is idempotent.
func (e *Engine) CheckBreaches(ctx context.Context) (BreachReport, error) {
	now := e.clock.Now()
	var report BreachReport
	err := e.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if report.FirstResponse, err = repos.Timers.MarkFirstResponseBreaches(ctx, now); err != nil {
			return err
		}
		report.Resolution, err = repos.Timers.MarkResolutionBreaches(ctx, now)
		return err
	})
	if err != nil {
		return BreachReport{}, err
	}

	e.metrics.RecordBreaches(string(events.SLABreachFirstResponse), len(report.FirstResponse))
	e.metrics.RecordBreaches(string(events.SLABreachResolution), len(report.Resolution))
	e.publishBreaches(ctx, now, events.SLABreachFirstResponse, report.FirstResponse)
	e.publishBreaches(ctx, now, events.SLABreachResolution, report.Resolution)

	if report.Total() > 0 {
		e.logger.Info("sla breaches detected",
			zap.Int("first_response", len(report.FirstResponse)),
			zap.Int("resolution", len(report.Resolution)),
		)
	}
	return report, nil
}

func (e *Engine) publishBreaches(ctx context.Context, now time.Time, kind events.SLABreachKind, ticketIDs []string) {
	if e.dispatcher == nil {
		return
	}
	for _, id := range ticketIDs {
		_ = e.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventSLABreached,
			TicketID:  id,
			Timestamp: now,
			Payload:   events.SLABreachedPayload{Kind: kind},
		})
	}
}
