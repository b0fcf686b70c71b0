// Package memory is an in-process repository.Store used by tests and by
// deployments that run without Postgres.
package memory

import (
	"context"
	"sync"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Store keeps every table in maps behind a single mutex. WithinTx holds the
// mutex for the whole callback and restores a snapshot when it fails, which
// gives callers serializable transactions.
type Store struct {
	mu    sync.Mutex
	state *state
	clock clock.Clock
}

type state struct {
	seq         int64
	tickets     map[string]domain.Ticket
	messages    map[string]domain.Message
	messageSeq  map[string]int64
	attachments map[string]domain.Attachment
	customers   map[string]domain.Customer
	agents      map[string]domain.Agent
	policies    map[string]domain.SLAPolicy
	timers      map[string]domain.SLATimer
	mailboxes   map[string]domain.Mailbox
	history     []domain.TicketHistory
	settings    map[string]string
}

// NewStore returns an empty store stamping rows with clk.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		clock: clk,
		state: &state{
			tickets:     map[string]domain.Ticket{},
			messages:    map[string]domain.Message{},
			messageSeq:  map[string]int64{},
			attachments: map[string]domain.Attachment{},
			customers:   map[string]domain.Customer{},
			agents:      map[string]domain.Agent{},
			policies:    map[string]domain.SLAPolicy{},
			timers:      map[string]domain.SLATimer{},
			mailboxes:   map[string]domain.Mailbox{},
			settings:    map[string]string{},
		},
	}
}

// Repos implements repository.Store.
func (s *Store) Repos() repository.Repositories {
	return s.repos(false)
}

// WithinTx implements repository.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	if err := fn(ctx, s.repos(true)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) repos(inTx bool) repository.Repositories {
	g := guard{store: s, inTx: inTx}
	return repository.Repositories{
		Tickets:     ticketRepo{g},
		Messages:    messageRepo{g},
		Attachments: attachmentRepo{g},
		Customers:   customerRepo{g},
		Agents:      agentRepo{g},
		Policies:    policyRepo{g},
		Timers:      timerRepo{g},
		Mailboxes:   mailboxRepo{g},
		History:     historyRepo{g},
		Settings:    settingsRepo{g},
	}
}

// guard serializes access to the state. Repositories handed out by WithinTx
// already run under the store mutex and must not take it again.
type guard struct {
	store *Store
	inTx  bool
}

func (g guard) with(fn func(st *state) error) error {
	if !g.inTx {
		g.store.mu.Lock()
		defer g.store.mu.Unlock()
	}
	return fn(g.store.state)
}

func (st *state) nextSeq() int64 {
	st.seq++
	return st.seq
}

func (st *state) clone() *state {
	out := &state{
		seq:         st.seq,
		tickets:     make(map[string]domain.Ticket, len(st.tickets)),
		messages:    make(map[string]domain.Message, len(st.messages)),
		messageSeq:  make(map[string]int64, len(st.messageSeq)),
		attachments: make(map[string]domain.Attachment, len(st.attachments)),
		customers:   make(map[string]domain.Customer, len(st.customers)),
		agents:      make(map[string]domain.Agent, len(st.agents)),
		policies:    make(map[string]domain.SLAPolicy, len(st.policies)),
		timers:      make(map[string]domain.SLATimer, len(st.timers)),
		mailboxes:   make(map[string]domain.Mailbox, len(st.mailboxes)),
		history:     append([]domain.TicketHistory(nil), st.history...),
		settings:    make(map[string]string, len(st.settings)),
	}
	for k, v := range st.tickets {
		v.Tags = append([]string(nil), v.Tags...)
		out.tickets[k] = v
	}
	for k, v := range st.messages {
		out.messages[k] = v
	}
	for k, v := range st.messageSeq {
		out.messageSeq[k] = v
	}
	for k, v := range st.attachments {
		out.attachments[k] = v
	}
	for k, v := range st.customers {
		out.customers[k] = v
	}
	for k, v := range st.agents {
		out.agents[k] = v
	}
	for k, v := range st.policies {
		out.policies[k] = v
	}
	for k, v := range st.timers {
		out.timers[k] = v
	}
	for k, v := range st.mailboxes {
		out.mailboxes[k] = v
	}
	for k, v := range st.settings {
		out.settings[k] = v
	}
	return out
}
