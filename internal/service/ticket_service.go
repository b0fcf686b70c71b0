package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/sequence"
	"github.com/spec-kit/helpdesk/internal/sla"
	"github.com/spec-kit/helpdesk/pkg/util/errorutil"
	"github.com/spec-kit/helpdesk/pkg/util/retry"
)

// createTicketAttempts bounds retries of ticket creation on uniqueness conflicts.
const createTicketAttempts = 3

// TicketService is the ticket lifecycle manager. Every mutation runs in one
// store transaction; events are published only after it commits.
type TicketService struct {
	store      repository.Store
	sequence   *sequence.Generator
	sla        *sla.Engine
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	sanitizer  *bluemonday.Policy
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Sequence   *sequence.Generator
	SLA        *sla.Engine
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject   string
	BodyText  string
	BodyHTML  string
	Priority  domain.TicketPriority
	Tags      []string
	MailboxID *string
}

// MessageInput describes a message appended to a ticket.
type MessageInput struct {
	Type      domain.MessageType
	Sender    domain.Sender
	BodyText  string
	BodyHTML  string
	Threading domain.Threading
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		store:      deps.Store,
		sequence:   deps.Sequence,
		sla:        deps.SLA,
		dispatcher: deps.Dispatcher,
		clock:      clk,
		logger:     logger,
		sanitizer:  bluemonday.UGCPolicy(),
	}
}

// CreateTicket opens a ticket for customer. The ticket row, the optional first
// message and the SLA timer are written in one transaction, retried with a fresh
// ticket number when a uniqueness constraint trips.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput, customer *domain.Customer) (*domain.Ticket, error) {
	if customer == nil {
		return nil, errorutil.NewValidationError("customer is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityNormal
	}
	if !priority.Valid() {
		return nil, errorutil.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		subject = "(no subject)"
	}

	var (
		ticket  *domain.Ticket
		initial *domain.Message
	)
	err := retry.Do(ctx, createTicketAttempts, isUniquenessConflict, func(ctx context.Context, attempt int) error {
		number, err := s.sequence.Next(ctx)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		candidate := &domain.Ticket{
			TicketNumber:   number,
			Subject:        subject,
			Status:         domain.TicketStatusOpen,
			Priority:       priority,
			CustomerID:     customer.ID,
			MailboxID:      input.MailboxID,
			Tags:           domain.MergeTags(nil, input.Tags),
			LastActivityAt: now,
		}
		var msg *domain.Message
		err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			if err := repos.Tickets.Create(ctx, candidate); err != nil {
				return err
			}
			if strings.TrimSpace(input.BodyText) != "" || strings.TrimSpace(input.BodyHTML) != "" {
				msg = &domain.Message{
					TicketID: candidate.ID,
					Type:     domain.MessageTypeReply,
					Sender:   customer.AsSender(),
					BodyText: input.BodyText,
					BodyHTML: s.sanitizeHTML(input.BodyHTML),
				}
				if err := repos.Messages.Create(ctx, msg); err != nil {
					return err
				}
			}
			_, err := s.sla.InitializeTimer(ctx, repos, candidate)
			return err
		})
		if err != nil && isUniquenessConflict(err) {
			s.logger.Warn("ticket creation conflicted; retrying",
				zap.String("ticket_number", number),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		if err == nil {
			ticket, initial = candidate, msg
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	actor := events.ActorFrom(customer.AsSender())
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			Priority:     ticket.Priority,
			Subject:      ticket.Subject,
			MailboxID:    ticket.MailboxID,
		},
	})
	if initial != nil {
		s.publishMessageAdded(ctx, initial)
	}
	return ticket, nil
}

// AddMessage appends a message and bumps the ticket's activity. An agent reply
// records the SLA first response; internal notes never touch SLA state.
func (s *TicketService) AddMessage(ctx context.Context, ticketID string, input MessageInput) (*domain.Message, error) {
	if input.Sender == nil {
		return nil, errorutil.NewValidationError("sender is required", nil)
	}
	if input.Type == "" {
		input.Type = domain.MessageTypeReply
	}
	if !input.Type.Valid() {
		return nil, errorutil.NewValidationError("invalid message type", map[string]any{"type": input.Type})
	}
	if input.Type == domain.MessageTypeInternalNote && !domain.IsAgent(input.Sender) {
		return nil, errorutil.NewValidationError("only agents can write internal notes", nil)
	}
	if strings.TrimSpace(input.BodyText) == "" && strings.TrimSpace(input.BodyHTML) == "" {
		return nil, errorutil.NewValidationError("message body is required", nil)
	}

	msg := &domain.Message{
		TicketID:   ticketID,
		Type:       input.Type,
		Sender:     input.Sender,
		BodyText:   input.BodyText,
		BodyHTML:   s.sanitizeHTML(input.BodyHTML),
		MessageID:  input.Threading.MessageID,
		InReplyTo:  input.Threading.InReplyTo,
		References: input.Threading.ReferencesHeader(),
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return notFound("ticket", ticketID, err)
		}
		if err := repos.Messages.Create(ctx, msg); err != nil {
			return err
		}
		ticket.LastActivityAt = s.clock.Now()
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		if msg.Type == domain.MessageTypeReply && domain.IsAgent(msg.Sender) {
			return s.sla.RecordFirstResponse(ctx, repos, ticket.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishMessageAdded(ctx, msg)
	return msg, nil
}

// UpdateStatus moves the ticket to newStatus, pausing or resuming its SLA clock
// and recording resolution when the ticket becomes RESOLVED or CLOSED.
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actor domain.Sender) (*domain.Ticket, error) {
	if !newStatus.Valid() {
		return nil, errorutil.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}
	var (
		ticket    *domain.Ticket
		oldStatus domain.TicketStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ticket, err = repos.Tickets.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return notFound("ticket", ticketID, err)
		}
		oldStatus = ticket.Status
		if oldStatus == newStatus {
			return nil
		}
		if err := s.applyStatus(ctx, repos, ticket, newStatus, actor); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if oldStatus != newStatus {
		s.publishStatusChanged(ctx, ticket.ID, oldStatus, newStatus, actor)
	}
	return ticket, nil
}

// applyStatus persists a status change inside the caller's transaction.
func (s *TicketService) applyStatus(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket, newStatus domain.TicketStatus, actor domain.Sender) error {
	oldStatus := ticket.Status
	ticket.Status = newStatus
	ticket.LastActivityAt = s.clock.Now()
	if err := repos.Tickets.Update(ctx, ticket); err != nil {
		return err
	}
	if err := s.sla.HandleStatusChange(ctx, repos, ticket.ID, oldStatus, newStatus); err != nil {
		return err
	}
	if newStatus.IsFinished() {
		if err := s.sla.RecordResolution(ctx, repos, ticket.ID); err != nil {
			return err
		}
	}
	return recordHistory(ctx, repos, ticket.ID, actor, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": newStatus})
}

// UpdatePriority changes the ticket priority. The existing SLA timer keeps the
// due dates of the policy it was created from.
func (s *TicketService) UpdatePriority(ctx context.Context, ticketID string, newPriority domain.TicketPriority, actor domain.Sender) (*domain.Ticket, error) {
	if !newPriority.Valid() {
		return nil, errorutil.NewValidationError("invalid priority", map[string]any{"priority": newPriority})
	}
	var (
		ticket      *domain.Ticket
		oldPriority domain.TicketPriority
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ticket, err = repos.Tickets.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return notFound("ticket", ticketID, err)
		}
		oldPriority = ticket.Priority
		if oldPriority == newPriority {
			return nil
		}
		ticket.Priority = newPriority
		ticket.LastActivityAt = s.clock.Now()
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return recordHistory(ctx, repos, ticket.ID, actor, domain.ChangeTypePriority,
			map[string]any{"priority": oldPriority},
			map[string]any{"priority": newPriority})
	})
	if err != nil {
		return nil, err
	}
	if oldPriority != newPriority {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: ticket.ID,
			Actor:    events.ActorFrom(actor),
			Payload: events.TicketPriorityChangedPayload{
				OldPriority: oldPriority,
				NewPriority: newPriority,
			},
		})
	}
	return ticket, nil
}

// AssignTicket sets or, with a nil assigneeID, clears the assignee.
func (s *TicketService) AssignTicket(ctx context.Context, ticketID string, assigneeID *string, actor domain.Sender) (*domain.Ticket, error) {
	var (
		ticket      *domain.Ticket
		oldAssignee *string
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ticket, err = repos.Tickets.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return notFound("ticket", ticketID, err)
		}
		if assigneeID != nil {
			agent, err := repos.Agents.GetByID(ctx, *assigneeID)
			if err != nil {
				return notFound("agent", *assigneeID, err)
			}
			if !agent.Active {
				return errorutil.NewValidationError("agent is inactive", map[string]any{"agent_id": agent.ID})
			}
		}
		oldAssignee = ticket.AssigneeID
		ticket.AssigneeID = assigneeID
		ticket.LastActivityAt = s.clock.Now()
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return recordHistory(ctx, repos, ticket.ID, actor, domain.ChangeTypeAssignee,
			map[string]any{"assignee_id": oldAssignee},
			map[string]any{"assignee_id": assigneeID})
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketAssignedPayload{
			OldAssigneeID: oldAssignee,
			AssigneeID:    assigneeID,
		},
	})
	return ticket, nil
}

// MergeTickets folds secondary into primary: its messages move over, its tags are
// unioned in, it is closed and its SLA timer is cancelled. Callers must reject
// merging a ticket into itself.
func (s *TicketService) MergeTickets(ctx context.Context, primaryID, secondaryID string, actor domain.Sender) (*domain.Ticket, error) {
	var (
		primary         *domain.Ticket
		secondaryStatus domain.TicketStatus
		moved           int64
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		locked, err := lockInOrder(ctx, repos, primaryID, secondaryID)
		if err != nil {
			return err
		}
		primary = locked[primaryID]
		secondary := locked[secondaryID]
		secondaryStatus = secondary.Status

		if moved, err = repos.Messages.MoveToTicket(ctx, secondary.ID, primary.ID); err != nil {
			return err
		}

		primary.Tags = domain.MergeTags(primary.Tags, secondary.Tags)
		primary.LastActivityAt = s.clock.Now()
		if err := repos.Tickets.Update(ctx, primary); err != nil {
			return err
		}

		if secondary.Status != domain.TicketStatusClosed {
			if err := s.applyStatus(ctx, repos, secondary, domain.TicketStatusClosed, actor); err != nil {
				return err
			}
		}
		if err := s.sla.CancelTimer(ctx, repos, secondary.ID); err != nil {
			return err
		}

		if err := recordHistory(ctx, repos, primary.ID, actor, domain.ChangeTypeMerge,
			nil, map[string]any{"merged_ticket_id": secondary.ID, "merged_ticket_number": secondary.TicketNumber}); err != nil {
			return err
		}
		return recordHistory(ctx, repos, secondary.ID, actor, domain.ChangeTypeMerge,
			nil, map[string]any{"merged_into_ticket_id": primary.ID, "merged_into_ticket_number": primary.TicketNumber})
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketsMerged,
		TicketID: primary.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketsMergedPayload{
			SecondaryTicketID: secondaryID,
			MovedMessages:     moved,
		},
	})
	if secondaryStatus != domain.TicketStatusClosed {
		s.publishStatusChanged(ctx, secondaryID, secondaryStatus, domain.TicketStatusClosed, actor)
	}
	return primary, nil
}

// lockInOrder locks tickets in ascending id order so concurrent merges cannot deadlock.
func lockInOrder(ctx context.Context, repos repository.Repositories, ids ...string) (map[string]*domain.Ticket, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)
	out := make(map[string]*domain.Ticket, len(ordered))
	for _, id := range ordered {
		ticket, err := repos.Tickets.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, notFound("ticket", id, err)
		}
		out[id] = ticket
	}
	return out, nil
}

// ResolveCustomer finds the customer with email, creating it on first contact.
func (s *TicketService) ResolveCustomer(ctx context.Context, email, name string) (*domain.Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errorutil.NewValidationError("customer email is required", nil)
	}
	return s.store.Repos().Customers.FindOrCreateByEmail(ctx, email, strings.TrimSpace(name))
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.store.Repos().Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFound("ticket", ticketID, err)
	}
	return ticket, nil
}

// ListTickets returns tickets matching filter, most recently active first.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.store.Repos().Tickets.ListWithFilter(ctx, filter)
}

// ListMessages returns the thread with attachments. Internal notes are dropped
// unless includeInternal is set.
func (s *TicketService) ListMessages(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Message, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	msgs, err := repos.Messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	filtered := make([]domain.Message, 0, len(msgs))
	for _, msg := range msgs {
		if !includeInternal && !msg.IsPublic() {
			continue
		}
		attachments, err := repos.Attachments.ListByMessage(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		msg.Attachments = attachments
		filtered = append(filtered, msg)
	}
	return filtered, nil
}

// ListHistory returns the audit trail of a ticket.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.store.Repos().History.ListByTicket(ctx, ticketID)
}

// SLAStatus reports the display state of the ticket's SLA timer.
func (s *TicketService) SLAStatus(ctx context.Context, ticketID string) (sla.Status, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return sla.Status{}, err
	}
	timer, err := s.store.Repos().Timers.GetByTicket(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.sla.Status(nil), nil
	}
	if err != nil {
		return sla.Status{}, err
	}
	return s.sla.Status(timer), nil
}

func (s *TicketService) sanitizeHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	return s.sanitizer.Sanitize(html)
}

func recordHistory(ctx context.Context, repos repository.Repositories, ticketID string, actor domain.Sender, change domain.TicketChangeType, oldValue, newValue map[string]any) error {
	return repos.History.Create(ctx, &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  actor,
		ChangeType: change,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
}

func (s *TicketService) publishMessageAdded(ctx context.Context, msg *domain.Message) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: msg.TicketID,
		Actor:    events.ActorFrom(msg.Sender),
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			MessageType: msg.Type,
			SenderKind:  msg.Sender.Kind(),
			SenderID:    msg.Sender.SenderID(),
			BodyPreview: stringPreview(msg.BodyText, 120),
		},
	})
}

func (s *TicketService) publishStatusChanged(ctx context.Context, ticketID string, oldStatus, newStatus domain.TicketStatus, actor domain.Sender) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticketID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func isUniquenessConflict(err error) bool {
	return errors.Is(err, repository.ErrDuplicate)
}

// notFound turns a repository miss into a NOT_FOUND domain error.
func notFound(resource, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errorutil.NewNotFound(resource, map[string]any{"id": id})
	}
	return err
}

// stringPreview shortens body to at most max runes.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
