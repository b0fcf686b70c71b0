package domain

import "time"

// SLAPolicy defines response and resolution targets for one priority.
type SLAPolicy struct {
	ID                 string
	Name               string
	Priority           TicketPriority
	FirstResponseHours float64
	ResolutionHours    float64
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FirstResponseWindow converts the policy's first response target to a duration.
func (p *SLAPolicy) FirstResponseWindow() time.Duration {
	return hoursToDuration(p.FirstResponseHours)
}

// ResolutionWindow converts the policy's resolution target to a duration.
func (p *SLAPolicy) ResolutionWindow() time.Duration {
	return hoursToDuration(p.ResolutionHours)
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// SLATimer tracks SLA deadlines for a single ticket. Breach flags never go back to false.
type SLATimer struct {
	ID                    string
	TicketID              string
	PolicyID              string
	FirstResponseDueAt    time.Time
	FirstRespondedAt      *time.Time
	ResolutionDueAt       time.Time
	ResolvedAt            *time.Time
	PausedAt              *time.Time
	TotalPausedSeconds    int64
	FirstResponseBreached bool
	ResolutionBreached    bool
	CancelledAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsPaused reports whether the SLA clock is currently stopped.
func (t *SLATimer) IsPaused() bool {
	return t.PausedAt != nil
}
