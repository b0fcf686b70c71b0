// Package mail holds the outbound message model, the SMTP sender and the
// registry of inbound mail fetchers.
package mail

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// OutboundEmail is a reply queued for delivery to a customer.
type OutboundEmail struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	MessageID  string    `json:"message_id"`
	To         string    `json:"to"`
	ToName     string    `json:"to_name,omitempty"`
	Subject    string    `json:"subject"`
	Text       string    `json:"text,omitempty"`
	HTML       string    `json:"html,omitempty"`
	HeaderID   string    `json:"header_message_id"`
	InReplyTo  string    `json:"in_reply_to,omitempty"`
	References []string  `json:"references,omitempty"`
	Attempts   int       `json:"attempts"`
	QueuedAt   time.Time `json:"queued_at"`
}

// Sender delivers outbound mail.
type Sender interface {
	Send(ctx context.Context, email OutboundEmail) error
}

// Fetcher returns emails received since the given time. A nil since means
// everything the connector still holds.
type Fetcher interface {
	FetchNewEmails(ctx context.Context, since *time.Time) ([]domain.EmailRecord, error)
}
