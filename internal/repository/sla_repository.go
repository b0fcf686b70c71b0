package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/persistence"
)

// SLAPolicyRepository stores SLA policies. At most one policy per priority is active.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	ActiveForPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error)
	List(ctx context.Context) ([]domain.SLAPolicy, error)
}

// SLATimerRepository stores per-ticket SLA timers.
type SLATimerRepository interface {
	Create(ctx context.Context, timer *domain.SLATimer) error
	GetByTicket(ctx context.Context, ticketID string) (*domain.SLATimer, error)
	// GetByTicketForUpdate loads the timer and locks its row for the rest of the transaction.
	GetByTicketForUpdate(ctx context.Context, ticketID string) (*domain.SLATimer, error)
	Update(ctx context.Context, timer *domain.SLATimer) error
	// MarkFirstResponseBreaches flags every running timer whose first response is overdue
	// at now and returns the affected ticket ids. Already flagged timers are skipped.
	MarkFirstResponseBreaches(ctx context.Context, now time.Time) ([]string, error)
	// MarkResolutionBreaches is the resolution counterpart of MarkFirstResponseBreaches.
	MarkResolutionBreaches(ctx context.Context, now time.Time) ([]string, error)
	CancelForTicket(ctx context.Context, ticketID string, at time.Time) error
}

type slaPolicyRepository struct {
	db persistence.Querier
}

// NewSLAPolicyRepository builds repository.
func NewSLAPolicyRepository(db persistence.Querier) SLAPolicyRepository {
	return &slaPolicyRepository{db: db}
}

const policyColumns = `id, name, priority, first_response_hours::float8, resolution_hours::float8,
               is_active, created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (name, priority, first_response_hours, resolution_hours, is_active)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		policy.Name,
		policy.Priority,
		policy.FirstResponseHours,
		policy.ResolutionHours,
		policy.IsActive,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
	return mapWriteError(err)
}

func (r *slaPolicyRepository) ActiveForPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE priority=$1 AND is_active LIMIT 1`
	return scanPolicy(r.db.QueryRow(ctx, query, priority))
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	rows, err := r.db.Query(ctx, `SELECT `+policyColumns+` FROM sla_policies ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *policy)
	}
	return result, rows.Err()
}

func scanPolicy(row pgx.Row) (*domain.SLAPolicy, error) {
	var policy domain.SLAPolicy
	if err := row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.Priority,
		&policy.FirstResponseHours,
		&policy.ResolutionHours,
		&policy.IsActive,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

type slaTimerRepository struct {
	db persistence.Querier
}

// NewSLATimerRepository builds repository.
func NewSLATimerRepository(db persistence.Querier) SLATimerRepository {
	return &slaTimerRepository{db: db}
}

const timerColumns = `id, ticket_id, policy_id, first_response_due_at, first_responded_at,
               resolution_due_at, resolved_at, paused_at, total_paused_seconds,
               first_response_breached, resolution_breached, cancelled_at, created_at, updated_at`

func (r *slaTimerRepository) Create(ctx context.Context, timer *domain.SLATimer) error {
	const query = `
        INSERT INTO sla_timers (ticket_id, policy_id, first_response_due_at, resolution_due_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		timer.TicketID,
		timer.PolicyID,
		timer.FirstResponseDueAt,
		timer.ResolutionDueAt,
	).Scan(&timer.ID, &timer.CreatedAt, &timer.UpdatedAt)
	return mapWriteError(err)
}

func (r *slaTimerRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.SLATimer, error) {
	if !validID(ticketID) {
		return nil, ErrNotFound
	}
	return scanTimer(r.db.QueryRow(ctx, `SELECT `+timerColumns+` FROM sla_timers WHERE ticket_id=$1`, ticketID))
}

func (r *slaTimerRepository) GetByTicketForUpdate(ctx context.Context, ticketID string) (*domain.SLATimer, error) {
	if !validID(ticketID) {
		return nil, ErrNotFound
	}
	return scanTimer(r.db.QueryRow(ctx, `SELECT `+timerColumns+` FROM sla_timers WHERE ticket_id=$1 FOR UPDATE`, ticketID))
}

// Update writes the mutable timer fields. Breach flags are OR-ed so a concurrent
// sweep can never be undone.
func (r *slaTimerRepository) Update(ctx context.Context, timer *domain.SLATimer) error {
	const query = `
        UPDATE sla_timers SET
            first_response_due_at=$1, first_responded_at=$2, resolution_due_at=$3, resolved_at=$4,
            paused_at=$5, total_paused_seconds=$6,
            first_response_breached = first_response_breached OR $7,
            resolution_breached = resolution_breached OR $8,
            cancelled_at=$9, updated_at=NOW()
        WHERE id=$10
        RETURNING first_response_breached, resolution_breached, updated_at`
	return r.db.QueryRow(ctx, query,
		timer.FirstResponseDueAt,
		timer.FirstRespondedAt,
		timer.ResolutionDueAt,
		timer.ResolvedAt,
		timer.PausedAt,
		timer.TotalPausedSeconds,
		timer.FirstResponseBreached,
		timer.ResolutionBreached,
		timer.CancelledAt,
		timer.ID,
	).Scan(&timer.FirstResponseBreached, &timer.ResolutionBreached, &timer.UpdatedAt)
}

func (r *slaTimerRepository) MarkFirstResponseBreaches(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
        UPDATE sla_timers SET first_response_breached = TRUE, updated_at = NOW()
        WHERE first_responded_at IS NULL
          AND first_response_due_at < $1
          AND NOT first_response_breached
          AND paused_at IS NULL
          AND cancelled_at IS NULL
        RETURNING ticket_id`
	return r.collectTicketIDs(ctx, query, now)
}

func (r *slaTimerRepository) MarkResolutionBreaches(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
        UPDATE sla_timers SET resolution_breached = TRUE, updated_at = NOW()
        WHERE resolved_at IS NULL
          AND resolution_due_at < $1
          AND NOT resolution_breached
          AND paused_at IS NULL
          AND cancelled_at IS NULL
        RETURNING ticket_id`
	return r.collectTicketIDs(ctx, query, now)
}

func (r *slaTimerRepository) collectTicketIDs(ctx context.Context, query string, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *slaTimerRepository) CancelForTicket(ctx context.Context, ticketID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sla_timers SET cancelled_at=$1, updated_at=NOW() WHERE ticket_id=$2 AND cancelled_at IS NULL`,
		at, ticketID)
	return err
}

func scanTimer(row pgx.Row) (*domain.SLATimer, error) {
	var timer domain.SLATimer
	if err := row.Scan(
		&timer.ID,
		&timer.TicketID,
		&timer.PolicyID,
		&timer.FirstResponseDueAt,
		&timer.FirstRespondedAt,
		&timer.ResolutionDueAt,
		&timer.ResolvedAt,
		&timer.PausedAt,
		&timer.TotalPausedSeconds,
		&timer.FirstResponseBreached,
		&timer.ResolutionBreached,
		&timer.CancelledAt,
		&timer.CreatedAt,
		&timer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &timer, nil
}
