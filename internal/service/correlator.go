package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/sequence"
	"github.com/spec-kit/helpdesk/internal/storage"
	"github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// Correlation strategies, in the order they are tried.
const (
	MatchInReplyTo  = "in_reply_to"
	MatchReferences = "references"
	MatchSubjectTag = "subject_tag"
	MatchNone       = "new_ticket"
	// MatchDuplicate marks a redelivered email whose Message-ID is already stored.
	MatchDuplicate = "duplicate"
)

// emptyBody stands in for inbound mail without a body so the thread keeps a
// message carrying its threading identifiers.
const emptyBody = "(no content)"

// Correlator threads inbound email into tickets and composes outbound headers.
type Correlator struct {
	store    repository.Store
	tickets  *TicketService
	sequence *sequence.Generator
	sink     storage.Sink
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// CorrelatorDependencies bundles collaborators for the correlator.
type CorrelatorDependencies struct {
	Store    repository.Store
	Tickets  *TicketService
	Sequence *sequence.Generator
	Sink     storage.Sink
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// NewCorrelator constructs the correlator.
func NewCorrelator(deps CorrelatorDependencies) *Correlator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{
		store:    deps.Store,
		tickets:  deps.Tickets,
		sequence: deps.Sequence,
		sink:     deps.Sink,
		logger:   logger,
		metrics:  deps.Metrics,
	}
}

// InboundResult reports where an inbound email landed.
type InboundResult struct {
	Ticket   *domain.Ticket
	Message  *domain.Message
	Strategy string
	Created  bool
}

// ProcessInboundEmail appends rec to the ticket it replies to, or opens a new
// ticket when no strategy matches. Replies to RESOLVED or CLOSED tickets reopen them.
func (c *Correlator) ProcessInboundEmail(ctx context.Context, rec domain.EmailRecord, mailbox *domain.Mailbox) (*InboundResult, error) {
	fromEmail := strings.TrimSpace(rec.FromEmail)
	if fromEmail == "" {
		return nil, errorutil.NewValidationError("inbound email has no sender", map[string]any{"message_id": rec.MessageID})
	}
	repos := c.store.Repos()
	if dup, err := c.findDuplicate(ctx, repos, rec.MessageID); dup != nil || err != nil {
		return dup, err
	}
	customer, err := repos.Customers.FindOrCreateByEmail(ctx, fromEmail, strings.TrimSpace(rec.FromName))
	if err != nil {
		return nil, err
	}

	ticket, strategy, err := c.match(ctx, repos, rec)
	if err != nil {
		return nil, err
	}

	result := &InboundResult{Strategy: strategy}
	if ticket == nil {
		result.Ticket, result.Message, err = c.openTicket(ctx, rec, customer, mailbox)
		result.Created = true
	} else {
		result.Ticket, result.Message, err = c.appendReply(ctx, ticket, rec, customer)
	}
	if err != nil {
		return nil, err
	}

	if err := c.storeAttachments(ctx, result.Ticket.ID, result.Message, rec.Attachments); err != nil {
		return nil, err
	}

	c.metrics.RecordCorrelation(strategy)
	c.logger.Info("inbound email processed",
		zap.String("ticket_number", result.Ticket.TicketNumber),
		zap.String("strategy", strategy),
		zap.Bool("created", result.Created),
		zap.Int("attachments", len(rec.Attachments)),
	)
	return result, nil
}

// findDuplicate returns the earlier result of an email redelivered by the fetcher.
func (c *Correlator) findDuplicate(ctx context.Context, repos repository.Repositories, messageID string) (*InboundResult, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, nil
	}
	msg, err := repos.Messages.FindByMessageID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ticket, err := repos.Tickets.GetByID(ctx, msg.TicketID)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordCorrelation(MatchDuplicate)
	c.logger.Info("duplicate inbound email ignored",
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("message_id", messageID))
	return &InboundResult{Ticket: ticket, Message: msg, Strategy: MatchDuplicate}, nil
}

// match tries In-Reply-To, then References, then the subject tag.
func (c *Correlator) match(ctx context.Context, repos repository.Repositories, rec domain.EmailRecord) (*domain.Ticket, string, error) {
	if inReplyTo := strings.TrimSpace(rec.InReplyTo); inReplyTo != "" {
		ticket, err := c.ticketOfMessage(ctx, repos, func() (*domain.Message, error) {
			return repos.Messages.FindByMessageID(ctx, inReplyTo)
		})
		if ticket != nil || err != nil {
			return ticket, MatchInReplyTo, err
		}
	}

	if len(rec.References) > 0 {
		ticket, err := c.ticketOfMessage(ctx, repos, func() (*domain.Message, error) {
			return repos.Messages.FindByAnyMessageID(ctx, []string(rec.References))
		})
		if ticket != nil || err != nil {
			return ticket, MatchReferences, err
		}
	}

	if number, ok := c.sequence.ExtractNumber(rec.Subject); ok {
		ticket, err := repos.Tickets.GetByNumber(ctx, number)
		if err == nil {
			return ticket, MatchSubjectTag, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, "", err
		}
	}
	return nil, MatchNone, nil
}

func (c *Correlator) ticketOfMessage(ctx context.Context, repos repository.Repositories, find func() (*domain.Message, error)) (*domain.Ticket, error) {
	msg, err := find()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return repos.Tickets.GetByID(ctx, msg.TicketID)
}

func (c *Correlator) openTicket(ctx context.Context, rec domain.EmailRecord, customer *domain.Customer, mailbox *domain.Mailbox) (*domain.Ticket, *domain.Message, error) {
	input := TicketCreateInput{
		Subject:  rec.Subject,
		BodyText: bodyOrPlaceholder(rec),
		BodyHTML: rec.BodyHTML,
		Priority: domain.TicketPriorityNormal,
	}
	if mailbox != nil {
		id := mailbox.ID
		input.MailboxID = &id
	}
	ticket, err := c.tickets.CreateTicket(ctx, input, customer)
	if err != nil {
		return nil, nil, err
	}

	// The first message is created before the headers are attached; patch them in.
	repos := c.store.Repos()
	msg, err := repos.Messages.FirstByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, err
	}
	threading := rec.Threading()
	if err := repos.Messages.UpdateThreading(ctx, msg.ID, threading); err != nil {
		return nil, nil, err
	}
	msg.MessageID = threading.MessageID
	msg.InReplyTo = threading.InReplyTo
	msg.References = threading.ReferencesHeader()
	return ticket, msg, nil
}

func (c *Correlator) appendReply(ctx context.Context, ticket *domain.Ticket, rec domain.EmailRecord, customer *domain.Customer) (*domain.Ticket, *domain.Message, error) {
	sender := customer.AsSender()
	if ticket.Status.IsFinished() {
		reopened, err := c.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusOpen, sender)
		if err != nil {
			return nil, nil, err
		}
		ticket = reopened
	}
	msg, err := c.tickets.AddMessage(ctx, ticket.ID, MessageInput{
		Type:      domain.MessageTypeReply,
		Sender:    sender,
		BodyText:  bodyOrPlaceholder(rec),
		BodyHTML:  rec.BodyHTML,
		Threading: rec.Threading(),
	})
	if err != nil {
		return nil, nil, err
	}
	refreshed, err := c.tickets.GetTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, err
	}
	return refreshed, msg, nil
}

func (c *Correlator) storeAttachments(ctx context.Context, ticketID string, msg *domain.Message, attachments []domain.EmailAttachment) error {
	if len(attachments) == 0 {
		return nil
	}
	repos := c.store.Repos()
	for _, att := range attachments {
		mimeType := strings.TrimSpace(att.MimeType)
		if mimeType == "" {
			mimeType = storage.DefaultMimeType
		}
		path := storage.AttachmentPath(ticketID, att.FileName)
		if err := c.sink.Put(ctx, path, att.Content, mimeType); err != nil {
			return err
		}
		record := &domain.Attachment{
			MessageID:   msg.ID,
			FileName:    storage.SanitizeFileName(att.FileName),
			StoragePath: path,
			MimeType:    mimeType,
			SizeBytes:   int64(len(att.Content)),
		}
		if err := repos.Attachments.Create(ctx, record); err != nil {
			return err
		}
		msg.Attachments = append(msg.Attachments, *record)
	}
	return nil
}

func bodyOrPlaceholder(rec domain.EmailRecord) string {
	if strings.TrimSpace(rec.BodyText) == "" && strings.TrimSpace(rec.BodyHTML) == "" {
		return emptyBody
	}
	return rec.BodyText
}

// OutboundHeaders are the threading headers of a reply sent from a ticket.
type OutboundHeaders struct {
	Subject    string   `json:"subject"`
	InReplyTo  string   `json:"in_reply_to,omitempty"`
	References []string `json:"references"`
}

// ReferencesHeader renders References for the wire.
func (h OutboundHeaders) ReferencesHeader() string {
	return strings.Join(h.References, " ")
}

// BuildOutboundHeaders composes the subject and threading headers for a reply
// so mail clients keep it in the customer's thread.
func (c *Correlator) BuildOutboundHeaders(ctx context.Context, ticketID string) (OutboundHeaders, error) {
	repos := c.store.Repos()
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return OutboundHeaders{}, notFound("ticket", ticketID, err)
	}
	msgs, err := repos.Messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return OutboundHeaders{}, err
	}
	return composeHeaders(ticket, msgs), nil
}

func composeHeaders(ticket *domain.Ticket, msgs []domain.Message) OutboundHeaders {
	headers := OutboundHeaders{
		Subject:    taggedSubject(ticket.TicketNumber, ticket.Subject),
		References: []string{},
	}
	for _, msg := range msgs {
		if msg.MessageID == "" {
			continue
		}
		headers.References = append(headers.References, msg.MessageID)
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender != nil && msgs[i].Sender.Kind() == domain.SenderKindCustomer {
			headers.InReplyTo = msgs[i].MessageID
			break
		}
	}
	return headers
}

func taggedSubject(number, subject string) string {
	tag := "[" + number + "]"
	if strings.Contains(subject, tag) {
		return subject
	}
	return tag + " " + subject
}
