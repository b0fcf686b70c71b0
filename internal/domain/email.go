package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mailbox is an inbound address whose fetcher is polled on an interval.
type Mailbox struct {
	ID                     string
	Name                   string
	Email                  string
	IsActive               bool
	PollingIntervalMinutes int
	LastCheckedAt          *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsDue reports whether the mailbox should be polled at now.
func (m *Mailbox) IsDue(now time.Time) bool {
	if !m.IsActive {
		return false
	}
	if m.LastCheckedAt == nil {
		return true
	}
	interval := time.Duration(m.PollingIntervalMinutes) * time.Minute
	return !now.Before(m.LastCheckedAt.Add(interval))
}

// ReferenceList is the References header split into message ids. In JSON it accepts
// either a raw space-delimited string or an array of strings.
type ReferenceList []string

// ParseReferences splits a raw References header on whitespace.
func ParseReferences(raw string) ReferenceList {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return ReferenceList(fields)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ReferenceList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = nil
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*r = ParseReferences(raw)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("references must be a string or a list of strings: %w", err)
	}
	out := make(ReferenceList, 0, len(list))
	for _, item := range list {
		out = append(out, ParseReferences(item)...)
	}
	*r = out
	return nil
}

// EmailAttachment is an attachment blob carried by an inbound email.
type EmailAttachment struct {
	FileName string `json:"filename,omitempty"`
	Content  []byte `json:"content"`
	MimeType string `json:"mime_type,omitempty"`
}

// EmailRecord is a normalized inbound email as produced by a mail fetcher.
type EmailRecord struct {
	FromEmail   string            `json:"from_email"`
	FromName    string            `json:"from_name,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	BodyText    string            `json:"body_text,omitempty"`
	BodyHTML    string            `json:"body_html,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	InReplyTo   string            `json:"in_reply_to,omitempty"`
	References  ReferenceList     `json:"references,omitempty"`
	Attachments []EmailAttachment `json:"attachments,omitempty"`
}

// Threading extracts the record's threading identifiers.
func (e EmailRecord) Threading() Threading {
	return Threading{
		MessageID:  e.MessageID,
		InReplyTo:  e.InReplyTo,
		References: []string(e.References),
	}
}
