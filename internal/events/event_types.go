package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventTicketsMerged         EventType = "tickets_merged"
	EventSLABreached           EventType = "sla_breached"
)

// Actor identifies who caused an event. A zero Actor is the system.
type Actor struct {
	Kind domain.SenderKind `json:"kind,omitempty"`
	ID   string            `json:"id,omitempty"`
}

// ActorFrom converts a sender into an event actor.
func ActorFrom(s domain.Sender) Actor {
	if s == nil {
		return Actor{}
	}
	return Actor{Kind: s.Kind(), ID: s.SenderID()}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string                `json:"ticket_number"`
	Priority     domain.TicketPriority `json:"priority"`
	Subject      string                `json:"subject"`
	MailboxID    *string               `json:"mailbox_id,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldAssigneeID *string `json:"old_assignee_id,omitempty"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string             `json:"message_id"`
	MessageType domain.MessageType `json:"message_type"`
	SenderKind  domain.SenderKind  `json:"sender_kind"`
	SenderID    string             `json:"sender_id"`
	BodyPreview string             `json:"body_preview"`
}

// TicketsMergedPayload payload. The event is published on the primary ticket.
type TicketsMergedPayload struct {
	SecondaryTicketID string `json:"secondary_ticket_id"`
	MovedMessages     int64  `json:"moved_messages"`
}

// SLABreachKind distinguishes the two SLA targets.
type SLABreachKind string

const (
	SLABreachFirstResponse SLABreachKind = "first_response"
	SLABreachResolution    SLABreachKind = "resolution"
)

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Kind SLABreachKind `json:"kind"`
}
