package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Counter is the in-process counterpart of repository.TicketCounter.
type Counter struct {
	mu    sync.Mutex
	value int64
}

// NewCounter seeds a counter from the highest PREFIX-<n> ticket already in store.
func NewCounter(store *Store, prefix string) *Counter {
	c := &Counter{}
	head := prefix + "-"
	store.mu.Lock()
	for _, ticket := range store.state.tickets {
		if !strings.HasPrefix(ticket.TicketNumber, head) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(ticket.TicketNumber, head), 10, 64)
		if err == nil && n > c.value {
			c.value = n
		}
	}
	store.mu.Unlock()
	return c
}

// IncrementAndGet returns the next value.
func (c *Counter) IncrementAndGet(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value, nil
}
