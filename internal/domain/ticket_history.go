package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus   TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeMerge    TicketChangeType = "MERGE"
)

// TicketHistory is an immutable audit trail entry. A nil ChangedBy means the system.
type TicketHistory struct {
	ID         string
	TicketID   string
	ChangedBy  Sender
	ChangeType TicketChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
