package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type mailboxRepo struct{ g guard }

func (r mailboxRepo) Create(_ context.Context, mailbox *domain.Mailbox) error {
	return r.g.with(func(st *state) error {
		email := strings.ToLower(mailbox.Email)
		for _, existing := range st.mailboxes {
			if existing.Email == email {
				return fmt.Errorf("%w: mailbox %s", repository.ErrDuplicate, email)
			}
		}
		now := r.g.store.clock.Now()
		mailbox.ID = uuid.NewString()
		mailbox.Email = email
		mailbox.CreatedAt = now
		mailbox.UpdatedAt = now
		st.mailboxes[mailbox.ID] = *mailbox
		return nil
	})
}

func (r mailboxRepo) GetByID(_ context.Context, id string) (*domain.Mailbox, error) {
	var out domain.Mailbox
	err := r.g.with(func(st *state) error {
		mailbox, ok := st.mailboxes[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = mailbox
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r mailboxRepo) ListActive(_ context.Context) ([]domain.Mailbox, error) {
	var out []domain.Mailbox
	err := r.g.with(func(st *state) error {
		for _, mailbox := range st.mailboxes {
			if mailbox.IsActive {
				out = append(out, mailbox)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r mailboxRepo) MarkChecked(_ context.Context, id string, at time.Time) error {
	return r.g.with(func(st *state) error {
		mailbox, ok := st.mailboxes[id]
		if !ok {
			return repository.ErrNotFound
		}
		checked := at
		mailbox.LastCheckedAt = &checked
		mailbox.UpdatedAt = at
		st.mailboxes[id] = mailbox
		return nil
	})
}

type historyRepo struct{ g guard }

func (r historyRepo) Create(_ context.Context, history *domain.TicketHistory) error {
	return r.g.with(func(st *state) error {
		history.ID = uuid.NewString()
		history.CreatedAt = r.g.store.clock.Now()
		st.history = append(st.history, *history)
		return nil
	})
}

func (r historyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	err := r.g.with(func(st *state) error {
		for _, entry := range st.history {
			if entry.TicketID == ticketID {
				out = append(out, entry)
			}
		}
		return nil
	})
	return out, err
}

type settingsRepo struct{ g guard }

func (r settingsRepo) Get(_ context.Context, key, fallback string) (string, error) {
	value := fallback
	err := r.g.with(func(st *state) error {
		if v, ok := st.settings[key]; ok {
			value = v
		}
		return nil
	})
	return value, err
}

func (r settingsRepo) Set(_ context.Context, key, value string) error {
	return r.g.with(func(st *state) error {
		st.settings[key] = value
		return nil
	})
}
