package sla

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// StatusTag is the display state of one SLA target.
type StatusTag string

const (
	StatusNone        StatusTag = "none"
	StatusMet         StatusTag = "met"
	StatusBreached    StatusTag = "breached"
	StatusPaused      StatusTag = "paused"
	StatusApproaching StatusTag = "approaching"
	StatusOnTrack     StatusTag = "on_track"
)

// Color returns the UI color for the tag.
func (t StatusTag) Color() string {
	switch t {
	case StatusMet, StatusOnTrack:
		return "green"
	case StatusBreached:
		return "red"
	case StatusPaused:
		return "blue"
	case StatusApproaching:
		return "yellow"
	default:
		return "gray"
	}
}

// approachingFraction is the share of the window left when a target turns "approaching".
const approachingFraction = 0.25

// TargetStatus is the display state of one target.
type TargetStatus struct {
	Status StatusTag  `json:"status"`
	Color  string     `json:"color"`
	DueAt  *time.Time `json:"due_at,omitempty"`
}

// Status is the display state of both targets of a timer.
type Status struct {
	FirstResponse TargetStatus `json:"first_response"`
	Resolution    TargetStatus `json:"resolution"`
}

// Status derives the display state of timer at the engine's current time.
func (e *Engine) Status(timer *domain.SLATimer) Status {
	return StatusAt(timer, e.clock.Now())
}

// StatusAt derives the display state of timer at now. It never mutates the timer;
// an overdue target shows as breached before the sweep has flagged it.
func StatusAt(timer *domain.SLATimer, now time.Time) Status {
	if timer == nil || timer.CancelledAt != nil {
		none := TargetStatus{Status: StatusNone, Color: StatusNone.Color()}
		return Status{FirstResponse: none, Resolution: none}
	}
	paused := time.Duration(timer.TotalPausedSeconds) * time.Second
	return Status{
		FirstResponse: targetStatus(timer, timer.FirstResponseDueAt, timer.FirstRespondedAt, timer.FirstResponseBreached, paused, now),
		Resolution:    targetStatus(timer, timer.ResolutionDueAt, timer.ResolvedAt, timer.ResolutionBreached, paused, now),
	}
}

func targetStatus(timer *domain.SLATimer, due time.Time, completedAt *time.Time, breached bool, paused time.Duration, now time.Time) TargetStatus {
	tag := classify(timer, due, completedAt, breached, paused, now)
	dueAt := due
	return TargetStatus{Status: tag, Color: tag.Color(), DueAt: &dueAt}
}

func classify(timer *domain.SLATimer, due time.Time, completedAt *time.Time, breached bool, paused time.Duration, now time.Time) StatusTag {
	switch {
	case completedAt != nil && breached:
		return StatusBreached
	case completedAt != nil:
		return StatusMet
	case breached:
		return StatusBreached
	case timer.IsPaused():
		return StatusPaused
	case now.After(due):
		return StatusBreached
	}

	window := due.Sub(timer.CreatedAt) - paused
	remaining := due.Sub(now)
	if window > 0 && float64(remaining) <= float64(window)*approachingFraction {
		return StatusApproaching
	}
	return StatusOnTrack
}
