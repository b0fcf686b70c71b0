package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/persistence"
)

// TicketCounter is a per-prefix monotonic counter backed by ticket_counters.
// Every increment commits in its own transaction, so a value handed out to a
// ticket insert that later rolls back leaves a gap but is never reissued.
type TicketCounter struct {
	db     persistence.DB
	prefix string
}

// NewTicketCounter builds a counter for prefix.
func NewTicketCounter(db persistence.DB, prefix string) *TicketCounter {
	return &TicketCounter{db: db, prefix: prefix}
}

const (
	incrementCounterSQL = `UPDATE ticket_counters SET value = value + 1 WHERE name = $1 RETURNING value`
	seedCounterSQL      = `
        INSERT INTO ticket_counters (name, value)
        SELECT $1, COALESCE(MAX(CAST(substring(ticket_number FROM $3::int) AS BIGINT)), 0)
        FROM tickets WHERE ticket_number ~ $2
        ON CONFLICT (name) DO NOTHING`
)

// IncrementAndGet returns the next counter value. The first call for a prefix
// seeds the counter from the highest existing ticket number.
func (c *TicketCounter) IncrementAndGet(ctx context.Context) (int64, error) {
	var next int64
	err := pgx.BeginFunc(ctx, c.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, incrementCounterSQL, c.prefix).Scan(&next)
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		pattern := "^" + c.prefix + "-[0-9]+$"
		if _, err := tx.Exec(ctx, seedCounterSQL, c.prefix, pattern, len(c.prefix)+2); err != nil {
			return fmt.Errorf("seed counter: %w", err)
		}
		return tx.QueryRow(ctx, incrementCounterSQL, c.prefix).Scan(&next)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
