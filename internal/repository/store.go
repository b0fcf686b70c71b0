package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/helpdesk/internal/persistence"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = pgx.ErrNoRows

// ErrDuplicate is returned when an insert or update violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate key")

const uniqueViolation = "23505"

// Repositories bundles every repository bound to one connection or transaction.
type Repositories struct {
	Tickets     TicketRepository
	Messages    TicketMessageRepository
	Attachments AttachmentRepository
	Customers   CustomerRepository
	Agents      AgentRepository
	Policies    SLAPolicyRepository
	Timers      SLATimerRepository
	Mailboxes   MailboxRepository
	History     TicketHistoryRepository
	Settings    SettingsRepository
}

// Store hands out repositories, either directly or scoped to a transaction.
type Store interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type postgresStore struct {
	db persistence.DB
}

// NewPostgresStore builds a Store over a pgx pool.
func NewPostgresStore(db persistence.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) Repos() Repositories {
	return newRepositories(s.db)
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(ctx, newRepositories(tx))
	})
}

func newRepositories(q persistence.Querier) Repositories {
	return Repositories{
		Tickets:     NewTicketRepository(q),
		Messages:    NewTicketMessageRepository(q),
		Attachments: NewAttachmentRepository(q),
		Customers:   NewCustomerRepository(q),
		Agents:      NewAgentRepository(q),
		Policies:    NewSLAPolicyRepository(q),
		Timers:      NewSLATimerRepository(q),
		Mailboxes:   NewMailboxRepository(q),
		History:     NewTicketHistoryRepository(q),
		Settings:    NewSettingsRepository(q),
	}
}

// mapWriteError converts Postgres unique violations to ErrDuplicate.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// validID reports whether id can be bound to a UUID column. Lookups with any
// other id are a miss, matching what the memory store reports.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
