package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessageType differentiates between replies and notes.
type MessageType string

const (
	MessageTypeReply        MessageType = "REPLY"
	MessageTypeInternalNote MessageType = "INTERNAL_NOTE"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeReply || t == MessageTypeInternalNote
}

// SenderKind is the persisted discriminator of a Sender.
type SenderKind string

const (
	SenderKindAgent    SenderKind = "AGENT"
	SenderKindCustomer SenderKind = "CUSTOMER"
)

// Sender is who authored a message: exactly one of AgentSender or CustomerSender.
type Sender interface {
	SenderID() string
	SenderName() string
	Kind() SenderKind
	isSender()
}

// AgentSender is a message written by a helpdesk agent.
type AgentSender struct {
	ID   string
	Name string
}

func (s AgentSender) SenderID() string   { return s.ID }
func (s AgentSender) SenderName() string { return s.Name }
func (s AgentSender) Kind() SenderKind   { return SenderKindAgent }
func (AgentSender) isSender()            {}

// CustomerSender is a message written by the customer.
type CustomerSender struct {
	ID   string
	Name string
}

func (s CustomerSender) SenderID() string   { return s.ID }
func (s CustomerSender) SenderName() string { return s.Name }
func (s CustomerSender) Kind() SenderKind   { return SenderKindCustomer }
func (CustomerSender) isSender()            {}

// NewSender rebuilds a Sender from its persisted form.
func NewSender(kind SenderKind, id, name string) (Sender, error) {
	switch kind {
	case SenderKindAgent:
		return AgentSender{ID: id, Name: name}, nil
	case SenderKindCustomer:
		return CustomerSender{ID: id, Name: name}, nil
	default:
		return nil, fmt.Errorf("unknown sender kind %q", kind)
	}
}

// IsAgent reports whether s was written by an agent.
func IsAgent(s Sender) bool {
	_, ok := s.(AgentSender)
	return ok
}

// Message captures communications in a ticket thread.
type Message struct {
	ID          string
	TicketID    string
	Type        MessageType
	Sender      Sender
	BodyText    string
	BodyHTML    string
	MessageID   string
	InReplyTo   string
	References  string
	Attachments []Attachment
	CreatedAt   time.Time
}

// IsPublic reports whether the message may be shown to or sent to a customer.
func (m *Message) IsPublic() bool {
	return m.Type != MessageTypeInternalNote
}

// Threading holds the RFC 2822 identifiers mirrored from email headers.
type Threading struct {
	MessageID  string
	InReplyTo  string
	References []string
}

// ReferencesHeader renders the reference list the way it appears on the wire.
func (t Threading) ReferencesHeader() string {
	return strings.Join(t.References, " ")
}

// Attachment stores metadata for a stored message attachment.
type Attachment struct {
	ID          string
	MessageID   string
	FileName    string
	StoragePath string
	MimeType    string
	SizeBytes   int64
	CreatedAt   time.Time
}
