package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type ticketRepo struct{ g guard }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.g.with(func(st *state) error {
		for _, existing := range st.tickets {
			if existing.TicketNumber == ticket.TicketNumber {
				return fmt.Errorf("%w: ticket_number %s", repository.ErrDuplicate, ticket.TicketNumber)
			}
		}
		now := r.g.store.clock.Now()
		ticket.ID = uuid.NewString()
		ticket.CreatedAt = now
		ticket.UpdatedAt = now
		if ticket.Tags == nil {
			ticket.Tags = []string{}
		}
		stored := *ticket
		stored.Tags = append([]string(nil), ticket.Tags...)
		st.tickets[ticket.ID] = stored
		return nil
	})
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.g.with(func(st *state) error {
		existing, ok := st.tickets[ticket.ID]
		if !ok {
			return repository.ErrNotFound
		}
		existing.Subject = ticket.Subject
		existing.Status = ticket.Status
		existing.Priority = ticket.Priority
		existing.AssigneeID = ticket.AssigneeID
		existing.Tags = append([]string{}, ticket.Tags...)
		existing.LastActivityAt = ticket.LastActivityAt
		existing.UpdatedAt = r.g.store.clock.Now()
		st.tickets[ticket.ID] = existing
		ticket.UpdatedAt = existing.UpdatedAt
		return nil
	})
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.g.with(func(st *state) error {
		ticket, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = copyTicket(ticket)
		return nil
	})
	return out, err
}

func (r ticketRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r ticketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.g.with(func(st *state) error {
		for _, ticket := range st.tickets {
			if ticket.TicketNumber == number {
				out = copyTicket(ticket)
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r ticketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.g.with(func(st *state) error {
		for _, ticket := range st.tickets {
			if matchesFilter(ticket, filter) {
				out = append(out, *copyTicket(ticket))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].TicketNumber > out[j].TicketNumber
		}
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	limit, offset := filter.Limit, filter.Offset
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func matchesFilter(ticket domain.Ticket, filter repository.TicketFilter) bool {
	if filter.CustomerID != nil && ticket.CustomerID != *filter.CustomerID {
		return false
	}
	if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(ticket.Subject), term) &&
			!strings.Contains(strings.ToLower(ticket.TicketNumber), term) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, item := range list {
		if item == p {
			return true
		}
	}
	return false
}

func copyTicket(t domain.Ticket) *domain.Ticket {
	t.Tags = append([]string{}, t.Tags...)
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		t.AssigneeID = &id
	}
	if t.MailboxID != nil {
		id := *t.MailboxID
		t.MailboxID = &id
	}
	return &t
}
