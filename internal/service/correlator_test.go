package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/storage"
)

func inbound(from, subject, messageID string) domain.EmailRecord {
	return domain.EmailRecord{
		FromEmail: from,
		FromName:  "Jane",
		Subject:   subject,
		BodyText:  "body of " + subject,
		MessageID: messageID,
	}
}

func (h *harness) process(t *testing.T, rec domain.EmailRecord) *InboundResult {
	t.Helper()
	res, err := h.correlator.ProcessInboundEmail(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("ProcessInboundEmail(%s): %v", rec.MessageID, err)
	}
	return res
}

func TestInboundOpensTicketAndBackfillsThreading(t *testing.T) {
	h := newHarness(t)
	rec := inbound("Jane@Example.com", "Printer on fire", "<c1@mail>")
	rec.References = domain.ParseReferences("<older@mail>")

	res := h.process(t, rec)
	if !res.Created || res.Strategy != MatchNone {
		t.Fatalf("result = %+v, want new ticket", res)
	}
	if res.Ticket.TicketNumber != "TKT-1" || res.Ticket.Subject != "Printer on fire" {
		t.Fatalf("ticket = %+v", res.Ticket)
	}

	msgs := h.messages(t, res.Ticket.ID)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].MessageID != "<c1@mail>" || msgs[0].References != "<older@mail>" {
		t.Fatalf("threading = %q / %q", msgs[0].MessageID, msgs[0].References)
	}
	if h.timer(t, res.Ticket.ID) == nil {
		t.Fatal("inbound ticket should start an SLA timer")
	}

	customer, err := h.store.Repos().Customers.GetByID(context.Background(), res.Ticket.CustomerID)
	if err != nil {
		t.Fatalf("customer: %v", err)
	}
	if customer.Email != "jane@example.com" {
		t.Fatalf("customer email = %q, want lowercased", customer.Email)
	}
}

func TestInboundCorrelationPrecedence(t *testing.T) {
	h := newHarness(t)
	first := h.process(t, inbound("jane@example.com", "First", "<a1@mail>"))
	second := h.process(t, inbound("jane@example.com", "Second", "<b1@mail>"))

	tests := []struct {
		name     string
		rec      func() domain.EmailRecord
		want     string
		strategy string
	}{
		{
			name: "in-reply-to beats subject tag",
			rec: func() domain.EmailRecord {
				rec := inbound("jane@example.com", "Re: ["+second.Ticket.TicketNumber+"] Second", "<r1@mail>")
				rec.InReplyTo = "<a1@mail>"
				return rec
			},
			want:     first.Ticket.ID,
			strategy: MatchInReplyTo,
		},
		{
			name: "references when in-reply-to is unknown",
			rec: func() domain.EmailRecord {
				rec := inbound("jane@example.com", "Re: Second", "<r2@mail>")
				rec.InReplyTo = "<unknown@mail>"
				rec.References = domain.ParseReferences("<nothing@mail> <b1@mail> <a1@mail>")
				return rec
			},
			want:     second.Ticket.ID,
			strategy: MatchReferences,
		},
		{
			name: "subject tag",
			rec: func() domain.EmailRecord {
				return inbound("jane@example.com", "RE: ["+first.Ticket.TicketNumber+"] follow up", "<r3@mail>")
			},
			want:     first.Ticket.ID,
			strategy: MatchSubjectTag,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.process(t, tt.rec())
			if res.Created {
				t.Fatal("reply must not open a ticket")
			}
			if res.Ticket.ID != tt.want || res.Strategy != tt.strategy {
				t.Fatalf("matched %s via %s, want %s via %s", res.Ticket.ID, res.Strategy, tt.want, tt.strategy)
			}
		})
	}
}

func TestInboundUnknownSubjectTagOpensTicket(t *testing.T) {
	h := newHarness(t)
	res := h.process(t, inbound("jane@example.com", "Re: [TKT-99] lost", "<x@mail>"))
	if !res.Created || res.Strategy != MatchNone {
		t.Fatalf("result = %+v, want new ticket", res)
	}
}

func TestInboundReplyReopensFinishedTicket(t *testing.T) {
	h := newHarness(t)
	agent := h.agent(t, "bob@example.com", true)
	ctx := context.Background()
	res := h.process(t, inbound("jane@example.com", "Broken", "<c1@mail>"))

	if _, err := h.tickets.UpdateStatus(ctx, res.Ticket.ID, domain.TicketStatusClosed, agent.AsSender()); err != nil {
		t.Fatalf("close: %v", err)
	}

	h.clock.Advance(time.Hour)
	reply := inbound("jane@example.com", "Re: Broken", "<c2@mail>")
	reply.InReplyTo = "<c1@mail>"
	again := h.process(t, reply)

	if again.Ticket.ID != res.Ticket.ID {
		t.Fatal("reply should land on the closed ticket")
	}
	if again.Ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("status = %s, want OPEN", again.Ticket.Status)
	}
	if !again.Ticket.LastActivityAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("LastActivityAt = %v", again.Ticket.LastActivityAt)
	}
	if got := len(h.messages(t, res.Ticket.ID)); got != 2 {
		t.Fatalf("messages = %d, want 2", got)
	}
}

func TestInboundDuplicateIsIgnored(t *testing.T) {
	h := newHarness(t)
	first := h.process(t, inbound("jane@example.com", "Hello", "<dup@mail>"))
	second := h.process(t, inbound("jane@example.com", "Hello", "<dup@mail>"))

	if second.Strategy != MatchDuplicate || second.Created {
		t.Fatalf("second result = %+v, want duplicate", second)
	}
	if second.Ticket.ID != first.Ticket.ID {
		t.Fatal("duplicate should report the original ticket")
	}
	if got := len(h.messages(t, first.Ticket.ID)); got != 1 {
		t.Fatalf("messages = %d, want 1", got)
	}
}

func TestInboundRequiresSender(t *testing.T) {
	h := newHarness(t)
	_, err := h.correlator.ProcessInboundEmail(context.Background(), inbound("  ", "x", "<m@mail>"), nil)
	if errCode(err) != "VALIDATION_FAILED" {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestInboundEmptyBodyKeepsPlaceholder(t *testing.T) {
	h := newHarness(t)
	rec := inbound("jane@example.com", "", "<empty@mail>")
	rec.BodyText = ""

	res := h.process(t, rec)
	if res.Ticket.Subject != "(no subject)" {
		t.Fatalf("Subject = %q", res.Ticket.Subject)
	}
	msgs := h.messages(t, res.Ticket.ID)
	if len(msgs) != 1 || msgs[0].BodyText != emptyBody || msgs[0].MessageID != "<empty@mail>" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestInboundStoresAttachments(t *testing.T) {
	h := newHarness(t)
	mailbox := &domain.Mailbox{ID: "mb-1", Name: "Support", Email: "support@example.com", IsActive: true}
	rec := inbound("jane@example.com", "Logs", "<att@mail>")
	rec.Attachments = []domain.EmailAttachment{
		{FileName: "error log.txt", Content: []byte("boom"), MimeType: "text/plain"},
		{FileName: "../../etc/passwd", Content: []byte{1, 2, 3}},
	}

	res, err := h.correlator.ProcessInboundEmail(context.Background(), rec, mailbox)
	if err != nil {
		t.Fatalf("ProcessInboundEmail: %v", err)
	}
	if res.Ticket.MailboxID == nil || *res.Ticket.MailboxID != "mb-1" {
		t.Fatalf("MailboxID = %v", res.Ticket.MailboxID)
	}
	if len(res.Message.Attachments) != 2 || h.sink.Len() != 2 {
		t.Fatalf("attachments = %d stored = %d", len(res.Message.Attachments), h.sink.Len())
	}

	for i, att := range res.Message.Attachments {
		prefix := fmt.Sprintf("tickets/%s/", res.Ticket.ID)
		if !strings.HasPrefix(att.StoragePath, prefix) || strings.Contains(att.StoragePath, "..") {
			t.Fatalf("attachment %d path = %q", i, att.StoragePath)
		}
		obj, ok := h.sink.Get(att.StoragePath)
		if !ok || int64(len(obj.Content)) != att.SizeBytes {
			t.Fatalf("attachment %d blob = %+v, %v", i, obj, ok)
		}
	}
	if got := res.Message.Attachments[1].MimeType; got != storage.DefaultMimeType {
		t.Fatalf("default mime = %q", got)
	}

	listed, err := h.tickets.ListMessages(context.Background(), res.Ticket.ID, false)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(listed[0].Attachments) != 2 {
		t.Fatalf("listed attachments = %d", len(listed[0].Attachments))
	}
}

func TestBuildOutboundHeaders(t *testing.T) {
	h := newHarness(t)
	agent := h.agent(t, "bob@example.com", true)
	ctx := context.Background()

	res := h.process(t, inbound("jane@example.com", "VPN down", "<c1@mail>"))
	h.clock.Advance(time.Minute)
	if _, err := h.tickets.AddMessage(ctx, res.Ticket.ID, MessageInput{
		Sender: agent.AsSender(), BodyText: "try again",
		Threading: domain.Threading{MessageID: "<a1@helpdesk>", InReplyTo: "<c1@mail>"},
	}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	h.clock.Advance(time.Minute)
	reply := inbound("jane@example.com", "Re: ["+res.Ticket.TicketNumber+"] VPN down", "<c2@mail>")
	reply.InReplyTo = "<a1@helpdesk>"
	h.process(t, reply)

	headers, err := h.correlator.BuildOutboundHeaders(ctx, res.Ticket.ID)
	if err != nil {
		t.Fatalf("BuildOutboundHeaders: %v", err)
	}
	if headers.Subject != "[TKT-1] VPN down" {
		t.Fatalf("Subject = %q", headers.Subject)
	}
	if headers.InReplyTo != "<c2@mail>" {
		t.Fatalf("InReplyTo = %q, want latest customer message", headers.InReplyTo)
	}
	if got := headers.ReferencesHeader(); got != "<c1@mail> <a1@helpdesk> <c2@mail>" {
		t.Fatalf("References = %q", got)
	}

	if _, err := h.correlator.BuildOutboundHeaders(ctx, "missing"); errCode(err) != "NOT_FOUND" {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestTaggedSubjectDoesNotDuplicateTag(t *testing.T) {
	tests := []struct{ subject, want string }{
		{"Help", "[TKT-7] Help"},
		{"Re: [TKT-7] Help", "Re: [TKT-7] Help"},
		{"[TKT-8] Other", "[TKT-7] [TKT-8] Other"},
	}
	for _, tt := range tests {
		if got := taggedSubject("TKT-7", tt.subject); got != tt.want {
			t.Errorf("taggedSubject(%q) = %q, want %q", tt.subject, got, tt.want)
		}
	}
}
