package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk/internal/mail"
)

func newTestQueue(t *testing.T) (*Outbound, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewOutbound(client, ""), mr
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := q.Enqueue(ctx, mail.OutboundEmail{ID: id, To: id + "@example.com"}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}

	for _, want := range []string{"a", "b"} {
		got, err := q.Dequeue(ctx, 0)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got == nil || got.ID != want {
			t.Fatalf("Dequeue = %+v, want id %s", got, want)
		}
		if got.QueuedAt.IsZero() {
			t.Fatal("QueuedAt should be stamped on enqueue")
		}
	}
}

func TestDequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t)
	for _, block := range []time.Duration{0, 10 * time.Millisecond} {
		got, err := q.Dequeue(context.Background(), block)
		if err != nil {
			t.Fatalf("Dequeue(block=%v): %v", block, err)
		}
		if got != nil {
			t.Fatalf("Dequeue(block=%v) = %+v, want nil", block, got)
		}
	}
}

func TestRequeueMovesToDeadLetter(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	email := mail.OutboundEmail{ID: "x"}

	retry, err := q.Requeue(ctx, email, 2)
	if err != nil || !retry {
		t.Fatalf("first Requeue = %v, %v; want retry", retry, err)
	}
	got, _ := q.Dequeue(ctx, 0)
	if got.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", got.Attempts)
	}

	retry, err = q.Requeue(ctx, *got, 2)
	if err != nil || retry {
		t.Fatalf("second Requeue = %v, %v; want dead letter", retry, err)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("queue Len = %d, want 0", n)
	}
	dead, err := mr.List(q.DeadLetterKey())
	if err != nil || len(dead) != 1 {
		t.Fatalf("dead letter = %v, %v", dead, err)
	}
}
