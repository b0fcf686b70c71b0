package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type policyRepo struct{ g guard }

func (r policyRepo) Create(_ context.Context, policy *domain.SLAPolicy) error {
	return r.g.with(func(st *state) error {
		if policy.IsActive {
			for _, existing := range st.policies {
				if existing.IsActive && existing.Priority == policy.Priority {
					return fmt.Errorf("%w: active policy for %s", repository.ErrDuplicate, policy.Priority)
				}
			}
		}
		now := r.g.store.clock.Now()
		policy.ID = uuid.NewString()
		policy.CreatedAt = now
		policy.UpdatedAt = now
		st.policies[policy.ID] = *policy
		return nil
	})
}

func (r policyRepo) ActiveForPriority(_ context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	var out domain.SLAPolicy
	err := r.g.with(func(st *state) error {
		for _, policy := range st.policies {
			if policy.IsActive && policy.Priority == priority {
				out = policy
				return nil
			}
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r policyRepo) List(_ context.Context) ([]domain.SLAPolicy, error) {
	var out []domain.SLAPolicy
	err := r.g.with(func(st *state) error {
		for _, policy := range st.policies {
			out = append(out, policy)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

type timerRepo struct{ g guard }

func (r timerRepo) Create(_ context.Context, timer *domain.SLATimer) error {
	return r.g.with(func(st *state) error {
		for _, existing := range st.timers {
			if existing.TicketID == timer.TicketID {
				return fmt.Errorf("%w: timer for ticket %s", repository.ErrDuplicate, timer.TicketID)
			}
		}
		now := r.g.store.clock.Now()
		timer.ID = uuid.NewString()
		timer.CreatedAt = now
		timer.UpdatedAt = now
		st.timers[timer.ID] = *timer
		return nil
	})
}

func (r timerRepo) GetByTicket(_ context.Context, ticketID string) (*domain.SLATimer, error) {
	var out domain.SLATimer
	err := r.g.with(func(st *state) error {
		for _, timer := range st.timers {
			if timer.TicketID == ticketID {
				out = timer
				return nil
			}
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r timerRepo) GetByTicketForUpdate(ctx context.Context, ticketID string) (*domain.SLATimer, error) {
	return r.GetByTicket(ctx, ticketID)
}

func (r timerRepo) Update(_ context.Context, timer *domain.SLATimer) error {
	return r.g.with(func(st *state) error {
		existing, ok := st.timers[timer.ID]
		if !ok {
			return repository.ErrNotFound
		}
		timer.FirstResponseBreached = timer.FirstResponseBreached || existing.FirstResponseBreached
		timer.ResolutionBreached = timer.ResolutionBreached || existing.ResolutionBreached
		timer.UpdatedAt = r.g.store.clock.Now()
		timer.CreatedAt = existing.CreatedAt
		st.timers[timer.ID] = *timer
		return nil
	})
}

func (r timerRepo) MarkFirstResponseBreaches(_ context.Context, now time.Time) ([]string, error) {
	return r.markBreaches(now, func(t *domain.SLATimer) bool {
		if t.FirstRespondedAt != nil || t.FirstResponseBreached || !t.FirstResponseDueAt.Before(now) {
			return false
		}
		t.FirstResponseBreached = true
		return true
	})
}

func (r timerRepo) MarkResolutionBreaches(_ context.Context, now time.Time) ([]string, error) {
	return r.markBreaches(now, func(t *domain.SLATimer) bool {
		if t.ResolvedAt != nil || t.ResolutionBreached || !t.ResolutionDueAt.Before(now) {
			return false
		}
		t.ResolutionBreached = true
		return true
	})
}

func (r timerRepo) markBreaches(now time.Time, mark func(t *domain.SLATimer) bool) ([]string, error) {
	var ids []string
	err := r.g.with(func(st *state) error {
		for id, timer := range st.timers {
			if timer.PausedAt != nil || timer.CancelledAt != nil {
				continue
			}
			if mark(&timer) {
				timer.UpdatedAt = now
				st.timers[id] = timer
				ids = append(ids, timer.TicketID)
			}
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

func (r timerRepo) CancelForTicket(_ context.Context, ticketID string, at time.Time) error {
	return r.g.with(func(st *state) error {
		for id, timer := range st.timers {
			if timer.TicketID == ticketID && timer.CancelledAt == nil {
				cancelled := at
				timer.CancelledAt = &cancelled
				timer.UpdatedAt = at
				st.timers[id] = timer
			}
		}
		return nil
	})
}
