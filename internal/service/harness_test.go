package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/mail"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/sequence"
	"github.com/spec-kit/helpdesk/internal/sla"
	"github.com/spec-kit/helpdesk/internal/storage"
	"github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type harness struct {
	store      *memory.Store
	clock      *clock.FakeClock
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	engine     *sla.Engine
	seq        *sequence.Generator
	sink       *storage.MemorySink
	tickets    *TicketService
	correlator *Correlator
	outbox     *fakeQueue

	mu     sync.Mutex
	events []events.Event
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithCounter(t, nil)
}

func newHarnessWithCounter(t *testing.T, counter sequence.CounterStore) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.Fake(t0),
		metrics: observability.NewMetrics(),
		sink:    storage.NewMemorySink(),
		outbox:  &fakeQueue{},
	}
	h.store = memory.NewStore(h.clock)
	h.dispatcher = events.NewInMemoryDispatcher(nil)
	for _, typ := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketMessageAdded,
		events.EventTicketsMerged,
		events.EventTicketAssigned,
		events.EventTicketPriorityChanged,
	} {
		h.dispatcher.Subscribe(typ, h.capture)
	}

	if counter == nil {
		counter = memory.NewCounter(h.store, "TKT")
	}
	seq, err := sequence.NewGenerator(counter, "TKT")
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	h.seq = seq
	h.engine = sla.NewEngine(h.store, h.clock, h.dispatcher, nil, h.metrics)
	h.tickets = NewTicketService(TicketDependencies{
		Store:      h.store,
		Sequence:   seq,
		SLA:        h.engine,
		Dispatcher: h.dispatcher,
		Clock:      h.clock,
	})
	h.correlator = NewCorrelator(CorrelatorDependencies{
		Store:    h.store,
		Tickets:  h.tickets,
		Sequence: seq,
		Sink:     h.sink,
		Metrics:  h.metrics,
	})

	ctx := context.Background()
	for _, p := range []*domain.SLAPolicy{
		{Name: "Normal", Priority: domain.TicketPriorityNormal, FirstResponseHours: 4, ResolutionHours: 24, IsActive: true},
		{Name: "High", Priority: domain.TicketPriorityHigh, FirstResponseHours: 1, ResolutionHours: 8, IsActive: true},
	} {
		if err := h.store.Repos().Policies.Create(ctx, p); err != nil {
			t.Fatalf("create policy: %v", err)
		}
	}
	return h
}

func (h *harness) capture(_ context.Context, e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *harness) eventsOf(typ events.EventType) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []events.Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) customer(t *testing.T, email string) *domain.Customer {
	t.Helper()
	c, err := h.store.Repos().Customers.FindOrCreateByEmail(context.Background(), email, "Customer")
	if err != nil {
		t.Fatalf("customer: %v", err)
	}
	return c
}

func (h *harness) agent(t *testing.T, email string, active bool) *domain.Agent {
	t.Helper()
	a := &domain.Agent{Name: "Agent " + email, Email: email, PasswordHash: "x", Role: domain.AgentRoleAgent, Active: active}
	if err := h.store.Repos().Agents.Create(context.Background(), a); err != nil {
		t.Fatalf("agent: %v", err)
	}
	return a
}

func (h *harness) ticket(t *testing.T, input TicketCreateInput) *domain.Ticket {
	t.Helper()
	if input.Subject == "" {
		input.Subject = "Printer on fire"
	}
	if input.BodyText == "" {
		input.BodyText = "It is smoking."
	}
	ticket, err := h.tickets.CreateTicket(context.Background(), input, h.customer(t, "jane@example.com"))
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return ticket
}

func (h *harness) timer(t *testing.T, ticketID string) *domain.SLATimer {
	t.Helper()
	timer, err := h.store.Repos().Timers.GetByTicket(context.Background(), ticketID)
	if err != nil {
		t.Fatalf("GetByTicket: %v", err)
	}
	return timer
}

func (h *harness) messages(t *testing.T, ticketID string) []domain.Message {
	t.Helper()
	msgs, err := h.store.Repos().Messages.ListByTicket(context.Background(), ticketID)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	return msgs
}

// sliceCounter replays fixed values, then keeps counting from the last one.
type sliceCounter struct {
	mu     sync.Mutex
	values []int64
	last   int64
}

func (c *sliceCounter) IncrementAndGet(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.values) > 0 {
		c.last, c.values = c.values[0], c.values[1:]
		return c.last, nil
	}
	c.last++
	return c.last, nil
}

type fakeQueue struct {
	mu     sync.Mutex
	emails []mail.OutboundEmail
	err    error
}

func (q *fakeQueue) Enqueue(_ context.Context, email mail.OutboundEmail) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.emails = append(q.emails, email)
	return nil
}

func errCode(err error) string {
	var de *errorutil.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
