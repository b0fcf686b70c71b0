package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/persistence"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	db persistence.Querier
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(db persistence.Querier) TicketHistoryRepository {
	return &ticketHistoryRepository{db: db}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	var actorKind, actorID *string
	if history.ChangedBy != nil {
		kind := string(history.ChangedBy.Kind())
		id := history.ChangedBy.SenderID()
		actorKind, actorID = &kind, &id
	}
	return r.db.QueryRow(ctx, query,
		history.TicketID,
		actorKind,
		actorID,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT h.id, h.ticket_id, h.changed_by_type, h.changed_by_id, COALESCE(a.name, c.name, ''),
               h.change_type, h.old_value, h.new_value, h.created_at
        FROM ticket_history h
        LEFT JOIN agents a ON h.changed_by_type = 'AGENT' AND a.id = h.changed_by_id
        LEFT JOIN customers c ON h.changed_by_type = 'CUSTOMER' AND c.id = h.changed_by_id
        WHERE h.ticket_id=$1 ORDER BY h.created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		history, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *history)
	}
	return result, rows.Err()
}

func scanHistory(row pgx.Row) (*domain.TicketHistory, error) {
	var (
		history   domain.TicketHistory
		actorKind *string
		actorID   *string
		actorName string
	)
	if err := row.Scan(
		&history.ID,
		&history.TicketID,
		&actorKind,
		&actorID,
		&actorName,
		&history.ChangeType,
		&history.OldValue,
		&history.NewValue,
		&history.CreatedAt,
	); err != nil {
		return nil, err
	}
	if actorKind != nil && actorID != nil {
		sender, err := domain.NewSender(domain.SenderKind(*actorKind), *actorID, actorName)
		if err != nil {
			return nil, err
		}
		history.ChangedBy = sender
	}
	return &history, nil
}
