package events

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventSLABreached, func(context.Context, Event) error {
		calls = append(calls, "unrelated")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventTicketCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestActorFrom(t *testing.T) {
	if got := ActorFrom(nil); got != (Actor{}) {
		t.Fatalf("nil sender should be the system actor, got %+v", got)
	}
	got := ActorFrom(domain.AgentSender{ID: "a-1", Name: "Ann"})
	if got.Kind != domain.SenderKindAgent || got.ID != "a-1" {
		t.Fatalf("got %+v", got)
	}
}
