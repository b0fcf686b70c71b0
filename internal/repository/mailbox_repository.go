package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/persistence"
)

// MailboxRepository stores inbound mailboxes.
type MailboxRepository interface {
	Create(ctx context.Context, mailbox *domain.Mailbox) error
	GetByID(ctx context.Context, id string) (*domain.Mailbox, error)
	ListActive(ctx context.Context) ([]domain.Mailbox, error)
	MarkChecked(ctx context.Context, id string, at time.Time) error
}

type mailboxRepository struct {
	db persistence.Querier
}

// NewMailboxRepository builds repository.
func NewMailboxRepository(db persistence.Querier) MailboxRepository {
	return &mailboxRepository{db: db}
}

const mailboxColumns = `id, name, email, is_active, polling_interval_minutes, last_checked_at, created_at, updated_at`

func (r *mailboxRepository) Create(ctx context.Context, mailbox *domain.Mailbox) error {
	const query = `
        INSERT INTO mailboxes (name, email, is_active, polling_interval_minutes)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		mailbox.Name,
		strings.ToLower(mailbox.Email),
		mailbox.IsActive,
		mailbox.PollingIntervalMinutes,
	).Scan(&mailbox.ID, &mailbox.CreatedAt, &mailbox.UpdatedAt)
	return mapWriteError(err)
}

func (r *mailboxRepository) GetByID(ctx context.Context, id string) (*domain.Mailbox, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanMailbox(r.db.QueryRow(ctx, `SELECT `+mailboxColumns+` FROM mailboxes WHERE id=$1`, id))
}

func (r *mailboxRepository) ListActive(ctx context.Context) ([]domain.Mailbox, error) {
	rows, err := r.db.Query(ctx, `SELECT `+mailboxColumns+` FROM mailboxes WHERE is_active ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Mailbox
	for rows.Next() {
		mailbox, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *mailbox)
	}
	return result, rows.Err()
}

func (r *mailboxRepository) MarkChecked(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE mailboxes SET last_checked_at=$1, updated_at=NOW() WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMailbox(row pgx.Row) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	if err := row.Scan(
		&mailbox.ID,
		&mailbox.Name,
		&mailbox.Email,
		&mailbox.IsActive,
		&mailbox.PollingIntervalMinutes,
		&mailbox.LastCheckedAt,
		&mailbox.CreatedAt,
		&mailbox.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &mailbox, nil
}
