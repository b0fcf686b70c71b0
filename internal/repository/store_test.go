package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestMapWriteError(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "tickets_ticket_number_key"}
	if err := mapWriteError(dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("unique violation should map to ErrDuplicate, got %v", err)
	}
	other := &pgconn.PgError{Code: "23503"}
	if err := mapWriteError(other); errors.Is(err, ErrDuplicate) {
		t.Fatal("foreign key violation must not map to ErrDuplicate")
	}
	if mapWriteError(nil) != nil {
		t.Fatal("nil should stay nil")
	}
}

func TestWithinTxCommitsAndRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	defer mock.Close()
	store := NewPostgresStore(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ticket_messages SET ticket_id").
		WithArgs("primary", "secondary").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err = store.WithinTx(context.Background(), func(ctx context.Context, repos Repositories) error {
		moved, err := repos.Messages.MoveToTicket(ctx, "secondary", "primary")
		if moved != 2 {
			t.Fatalf("moved = %d, want 2", moved)
		}
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectRollback()
	if err := store.WithinTx(context.Background(), func(context.Context, Repositories) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTimerBreachSweepReturnsTicketIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SET first_response_breached = TRUE").
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"ticket_id"}).AddRow("t-1").AddRow("t-2"))

	ids, err := NewSLATimerRepository(mock).MarkFirstResponseBreaches(context.Background(), now)
	if err != nil {
		t.Fatalf("MarkFirstResponseBreaches: %v", err)
	}
	if len(ids) != 2 || ids[0] != "t-1" || ids[1] != "t-2" {
		t.Fatalf("ids = %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSettingsGetFallsBackWhenUnset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs(SettingTicketPrefix).
		WillReturnError(ErrNotFound)

	got, err := NewSettingsRepository(mock).Get(context.Background(), SettingTicketPrefix, "TKT")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "TKT" {
		t.Fatalf("got %q, want TKT", got)
	}
}

func TestCustomerFindOrCreateLowercasesEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO customers").
		WithArgs("jane@example.com", "Jane").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "created_at", "updated_at"}).
			AddRow("c-1", "jane@example.com", "Jane", now, now))

	customer, err := NewCustomerRepository(mock).FindOrCreateByEmail(context.Background(), " Jane@Example.COM ", "Jane")
	if err != nil {
		t.Fatalf("FindOrCreateByEmail: %v", err)
	}
	if customer.ID != "c-1" {
		t.Fatalf("id = %q", customer.ID)
	}
	if sender := customer.AsSender(); sender.Kind() != domain.SenderKindCustomer {
		t.Fatalf("kind = %s", sender.Kind())
	}
}

func TestLookupsWithMalformedIDMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	defer mock.Close()
	repos := NewPostgresStore(mock).Repos()
	ctx := context.Background()

	lookups := map[string]func() error{
		"ticket": func() error { _, err := repos.Tickets.GetByID(ctx, "missing"); return err },
		"ticket for update": func() error {
			_, err := repos.Tickets.GetByIDForUpdate(ctx, "42")
			return err
		},
		"agent":    func() error { _, err := repos.Agents.GetByID(ctx, "nope"); return err },
		"customer": func() error { _, err := repos.Customers.GetByID(ctx, ""); return err },
		"mailbox":  func() error { _, err := repos.Mailboxes.GetByID(ctx, "inbox"); return err },
		"timer":    func() error { _, err := repos.Timers.GetByTicket(ctx, "TKT-1"); return err },
		"timer for update": func() error {
			_, err := repos.Timers.GetByTicketForUpdate(ctx, "TKT-1")
			return err
		},
	}
	for name, lookup := range lookups {
		t.Run(name, func(t *testing.T) {
			if err := lookup(); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}

	assignee := "nope"
	tickets, err := repos.Tickets.ListWithFilter(ctx, TicketFilter{AssigneeID: &assignee})
	if err != nil || len(tickets) != 0 {
		t.Fatalf("ListWithFilter = %v, %v, want empty", tickets, err)
	}
	// no statement may reach Postgres with a non-UUID id
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
