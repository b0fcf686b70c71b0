package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/sla"
)

// CreateTicketRequest is an agent opening a ticket on behalf of a customer.
type CreateTicketRequest struct {
	CustomerEmail string                `json:"customer_email"`
	CustomerName  string                `json:"customer_name"`
	Subject       string                `json:"subject"`
	BodyText      string                `json:"body_text"`
	BodyHTML      string                `json:"body_html"`
	Priority      domain.TicketPriority `json:"priority"`
	Tags          []string              `json:"tags"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Type     domain.MessageType `json:"type"`
	BodyText string             `json:"body_text"`
	BodyHTML string             `json:"body_html"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignRequest payload. A null assignee_id unassigns the ticket.
type AssignRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// MergeRequest payload.
type MergeRequest struct {
	SecondaryTicketID string `json:"secondary_ticket_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID             string                `json:"id"`
	TicketNumber   string                `json:"ticket_number"`
	Subject        string                `json:"subject"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	CustomerID     string                `json:"customer_id"`
	AssigneeID     *string               `json:"assignee_id"`
	MailboxID      *string               `json:"mailbox_id"`
	Tags           []string              `json:"tags"`
	LastActivityAt time.Time             `json:"last_activity_at"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Messages []TicketMessageResponse `json:"messages"`
	SLA      sla.Status              `json:"sla"`
}

// TicketMessageResponse represents a thread message.
type TicketMessageResponse struct {
	ID          string               `json:"id"`
	Type        domain.MessageType   `json:"type"`
	SenderType  domain.SenderKind    `json:"sender_type"`
	SenderID    string               `json:"sender_id"`
	SenderName  string               `json:"sender_name"`
	BodyText    string               `json:"body_text"`
	BodyHTML    string               `json:"body_html,omitempty"`
	MessageID   string               `json:"message_id,omitempty"`
	InReplyTo   string               `json:"in_reply_to,omitempty"`
	References  string               `json:"references,omitempty"`
	Attachments []AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StoragePath string `json:"storage_path"`
}

// TicketHistoryResponse is one audit trail entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.SenderKind       `json:"changed_by_type,omitempty"`
	ChangedByID   string                  `json:"changed_by_id,omitempty"`
	ChangedByName string                  `json:"changed_by_name,omitempty"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}

// InboundEmailResponse reports where an inbound email was threaded.
type InboundEmailResponse struct {
	TicketID     string `json:"ticket_id"`
	TicketNumber string `json:"ticket_number"`
	MessageID    string `json:"message_id"`
	Strategy     string `json:"strategy"`
	Created      bool   `json:"created"`
}
