package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type messageRepo struct{ g guard }

func (r messageRepo) Create(_ context.Context, msg *domain.Message) error {
	return r.g.with(func(st *state) error {
		msg.ID = uuid.NewString()
		msg.CreatedAt = r.g.store.clock.Now()
		stored := *msg
		stored.Attachments = nil
		st.messages[msg.ID] = stored
		st.messageSeq[msg.ID] = st.nextSeq()
		return nil
	})
}

// ordered returns the messages accepted by keep, oldest first.
func (st *state) ordered(keep func(domain.Message) bool) []domain.Message {
	var out []domain.Message
	for _, msg := range st.messages {
		if keep(msg) {
			out = append(out, st.withSenderName(msg))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return st.messageSeq[out[i].ID] < st.messageSeq[out[j].ID]
	})
	return out
}

// withSenderName resolves the sender's current display name like the SQL join does.
func (st *state) withSenderName(msg domain.Message) domain.Message {
	switch s := msg.Sender.(type) {
	case domain.AgentSender:
		if agent, ok := st.agents[s.ID]; ok {
			msg.Sender = agent.AsSender()
		}
	case domain.CustomerSender:
		if customer, ok := st.customers[s.ID]; ok {
			msg.Sender = customer.AsSender()
		}
	}
	return msg
}

func (r messageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	var out []domain.Message
	err := r.g.with(func(st *state) error {
		out = st.ordered(func(m domain.Message) bool { return m.TicketID == ticketID })
		return nil
	})
	return out, err
}

func (r messageRepo) FirstByTicket(_ context.Context, ticketID string) (*domain.Message, error) {
	var out *domain.Message
	err := r.g.with(func(st *state) error {
		msgs := st.ordered(func(m domain.Message) bool { return m.TicketID == ticketID })
		if len(msgs) == 0 {
			return repository.ErrNotFound
		}
		out = &msgs[0]
		return nil
	})
	return out, err
}

func (r messageRepo) FindByMessageID(_ context.Context, id string) (*domain.Message, error) {
	var out *domain.Message
	err := r.g.with(func(st *state) error {
		if id == "" {
			return repository.ErrNotFound
		}
		msgs := st.ordered(func(m domain.Message) bool { return m.MessageID == id })
		if len(msgs) == 0 {
			return repository.ErrNotFound
		}
		out = &msgs[0]
		return nil
	})
	return out, err
}

func (r messageRepo) FindByAnyMessageID(ctx context.Context, ids []string) (*domain.Message, error) {
	for _, id := range ids {
		msg, err := r.FindByMessageID(ctx, id)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return nil, repository.ErrNotFound
}

func (r messageRepo) UpdateThreading(_ context.Context, messageID string, threading domain.Threading) error {
	return r.g.with(func(st *state) error {
		msg, ok := st.messages[messageID]
		if !ok {
			return repository.ErrNotFound
		}
		msg.MessageID = threading.MessageID
		msg.InReplyTo = threading.InReplyTo
		msg.References = threading.ReferencesHeader()
		st.messages[messageID] = msg
		return nil
	})
}

func (r messageRepo) MoveToTicket(_ context.Context, fromTicketID, toTicketID string) (int64, error) {
	var moved int64
	err := r.g.with(func(st *state) error {
		for id, msg := range st.messages {
			if msg.TicketID == fromTicketID {
				msg.TicketID = toTicketID
				st.messages[id] = msg
				moved++
			}
		}
		return nil
	})
	return moved, err
}

type attachmentRepo struct{ g guard }

func (r attachmentRepo) Create(_ context.Context, attachment *domain.Attachment) error {
	return r.g.with(func(st *state) error {
		if _, ok := st.messages[attachment.MessageID]; !ok {
			return repository.ErrNotFound
		}
		attachment.ID = uuid.NewString()
		attachment.CreatedAt = r.g.store.clock.Now()
		st.attachments[attachment.ID] = *attachment
		return nil
	})
}

func (r attachmentRepo) ListByMessage(_ context.Context, messageID string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	err := r.g.with(func(st *state) error {
		for _, attachment := range st.attachments {
			if attachment.MessageID == messageID {
				out = append(out, attachment)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].FileName < out[j].FileName
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}
