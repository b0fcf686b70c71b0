package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateAgentRequest payload.
type CreateAgentRequest struct {
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Role     domain.AgentRole `json:"role"`
}

// CreatePolicyRequest payload.
type CreatePolicyRequest struct {
	Name               string                `json:"name"`
	Priority           domain.TicketPriority `json:"priority"`
	FirstResponseHours float64               `json:"first_response_hours"`
	ResolutionHours    float64               `json:"resolution_hours"`
}

// PolicyResponse describes an SLA policy.
type PolicyResponse struct {
	ID                 string                `json:"id"`
	Name               string                `json:"name"`
	Priority           domain.TicketPriority `json:"priority"`
	FirstResponseHours float64               `json:"first_response_hours"`
	ResolutionHours    float64               `json:"resolution_hours"`
	IsActive           bool                  `json:"is_active"`
}

// CreateMailboxRequest payload.
type CreateMailboxRequest struct {
	Name                   string `json:"name"`
	Email                  string `json:"email"`
	PollingIntervalMinutes int    `json:"polling_interval_minutes"`
}

// MailboxResponse describes an inbound mailbox.
type MailboxResponse struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	IsActive               bool       `json:"is_active"`
	PollingIntervalMinutes int        `json:"polling_interval_minutes"`
	LastCheckedAt          *time.Time `json:"last_checked_at"`
}
