package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/persistence"
)

// TicketMessageRepository manages ticket thread messages.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
	// FirstByTicket returns the oldest message of a ticket.
	FirstByTicket(ctx context.Context, ticketID string) (*domain.Message, error)
	// FindByMessageID returns the message whose message_id equals id exactly.
	FindByMessageID(ctx context.Context, id string) (*domain.Message, error)
	// FindByAnyMessageID returns the message matching the earliest listed id.
	FindByAnyMessageID(ctx context.Context, ids []string) (*domain.Message, error)
	UpdateThreading(ctx context.Context, messageID string, threading domain.Threading) error
	// MoveToTicket reassigns every message of fromTicketID and returns how many moved.
	MoveToTicket(ctx context.Context, fromTicketID, toTicketID string) (int64, error)
}

type ticketMessageRepository struct {
	db persistence.Querier
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(db persistence.Querier) TicketMessageRepository {
	return &ticketMessageRepository{db: db}
}

const messageSelect = `
        SELECT m.id, m.ticket_id, m.message_type, m.sender_type, m.sender_id,
               COALESCE(a.name, c.name, ''), m.body_text, m.body_html,
               m.message_id, m.in_reply_to, m."references", m.created_at
        FROM ticket_messages m
        LEFT JOIN agents a ON m.sender_type = 'AGENT' AND a.id = m.sender_id
        LEFT JOIN customers c ON m.sender_type = 'CUSTOMER' AND c.id = m.sender_id`

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, message_type, sender_type, sender_id, body_text, body_html,
            message_id, in_reply_to, "references")
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query,
		msg.TicketID,
		msg.Type,
		msg.Sender.Kind(),
		msg.Sender.SenderID(),
		msg.BodyText,
		msg.BodyHTML,
		nullableString(msg.MessageID),
		nullableString(msg.InReplyTo),
		nullableString(msg.References),
	).Scan(&msg.ID, &msg.CreatedAt)
	return mapWriteError(err)
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, messageSelect+` WHERE m.ticket_id=$1 ORDER BY m.created_at ASC, m.id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func (r *ticketMessageRepository) FirstByTicket(ctx context.Context, ticketID string) (*domain.Message, error) {
	return scanMessage(r.db.QueryRow(ctx, messageSelect+` WHERE m.ticket_id=$1 ORDER BY m.created_at ASC, m.id ASC LIMIT 1`, ticketID))
}

func (r *ticketMessageRepository) FindByMessageID(ctx context.Context, id string) (*domain.Message, error) {
	return scanMessage(r.db.QueryRow(ctx, messageSelect+` WHERE m.message_id=$1 ORDER BY m.created_at ASC LIMIT 1`, id))
}

func (r *ticketMessageRepository) FindByAnyMessageID(ctx context.Context, ids []string) (*domain.Message, error) {
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	query := messageSelect + ` WHERE m.message_id = ANY($1::text[])
        ORDER BY array_position($1::text[], m.message_id), m.created_at ASC LIMIT 1`
	return scanMessage(r.db.QueryRow(ctx, query, ids))
}

func (r *ticketMessageRepository) UpdateThreading(ctx context.Context, messageID string, threading domain.Threading) error {
	const query = `UPDATE ticket_messages SET message_id=$1, in_reply_to=$2, "references"=$3 WHERE id=$4`
	cmd, err := r.db.Exec(ctx, query,
		nullableString(threading.MessageID),
		nullableString(threading.InReplyTo),
		nullableString(threading.ReferencesHeader()),
		messageID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketMessageRepository) MoveToTicket(ctx context.Context, fromTicketID, toTicketID string) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE ticket_messages SET ticket_id=$1 WHERE ticket_id=$2`, toTicketID, fromTicketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		msg                           domain.Message
		kind                          domain.SenderKind
		senderID, senderName          string
		messageID, inReplyTo, refsRaw *string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.Type,
		&kind,
		&senderID,
		&senderName,
		&msg.BodyText,
		&msg.BodyHTML,
		&messageID,
		&inReplyTo,
		&refsRaw,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	sender, err := domain.NewSender(kind, senderID, senderName)
	if err != nil {
		return nil, err
	}
	msg.Sender = sender
	msg.MessageID = derefString(messageID)
	msg.InReplyTo = derefString(inReplyTo)
	msg.References = derefString(refsRaw)
	return &msg, nil
}
