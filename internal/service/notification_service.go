package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/mail"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// OutboundQueue accepts replies for asynchronous delivery.
type OutboundQueue interface {
	Enqueue(ctx context.Context, email mail.OutboundEmail) error
}

// NotificationService reacts to domain events: agent replies are mailed to
// the customer and everything else is logged.
type NotificationService struct {
	dispatcher events.Dispatcher
	store      repository.Store
	correlator *Correlator
	queue      OutboundQueue
	mailDomain string
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Store      repository.Store
	Correlator *Correlator
	Queue      OutboundQueue
	MailDomain string
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mailDomain := strings.TrimSpace(deps.MailDomain)
	if mailDomain == "" {
		mailDomain = "helpdesk.local"
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		correlator: deps.Correlator,
		queue:      deps.Queue,
		mailDomain: mailDomain,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketMessageAdded, n.handleTicketMessageAdded)
	for _, t := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged,
		events.EventTicketAssigned,
		events.EventTicketsMerged,
	} {
		n.dispatcher.Subscribe(t, n.logEvent)
	}
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleSLABreached)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_kind", string(event.Actor.Kind)),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleSLABreached(_ context.Context, event events.Event) error {
	n.logger.Warn("sla breached",
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMessageAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.logger.Info(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.String("message_type", string(payload.MessageType)),
		zap.String("sender_kind", string(payload.SenderKind)))

	if payload.MessageType != domain.MessageTypeReply || payload.SenderKind != domain.SenderKindAgent {
		return nil
	}
	if n.queue == nil || n.correlator == nil {
		return nil
	}
	return n.sendReply(ctx, event.TicketID, payload.MessageID)
}

// sendReply stamps the agent reply with outbound threading headers and queues
// it for delivery to the ticket's customer.
func (n *NotificationService) sendReply(ctx context.Context, ticketID, messageID string) error {
	headers, err := n.correlator.BuildOutboundHeaders(ctx, ticketID)
	if err != nil {
		return err
	}

	repos := n.store.Repos()
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	customer, err := repos.Customers.GetByID(ctx, ticket.CustomerID)
	if err != nil {
		return err
	}
	msg, err := findMessage(ctx, repos, ticketID, messageID)
	if err != nil {
		return err
	}

	threading := domain.Threading{
		MessageID:  n.newMessageID(),
		InReplyTo:  headers.InReplyTo,
		References: headers.References,
	}
	if err := repos.Messages.UpdateThreading(ctx, msg.ID, threading); err != nil {
		return err
	}

	email := mail.OutboundEmail{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		MessageID:  msg.ID,
		To:         customer.Email,
		ToName:     customer.Name,
		Subject:    headers.Subject,
		Text:       msg.BodyText,
		HTML:       msg.BodyHTML,
		HeaderID:   threading.MessageID,
		InReplyTo:  threading.InReplyTo,
		References: threading.References,
	}
	if err := n.queue.Enqueue(ctx, email); err != nil {
		return fmt.Errorf("enqueue reply: %w", err)
	}
	n.logger.Info("reply queued",
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("header_message_id", threading.MessageID))
	return nil
}

func (n *NotificationService) newMessageID() string {
	return "<" + uuid.NewString() + "@" + n.mailDomain + ">"
}

func findMessage(ctx context.Context, repos repository.Repositories, ticketID, messageID string) (*domain.Message, error) {
	msgs, err := repos.Messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].ID == messageID {
			return &msgs[i], nil
		}
	}
	return nil, repository.ErrNotFound
}
