package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type customerRepo struct{ g guard }

func (r customerRepo) FindOrCreateByEmail(_ context.Context, email, name string) (*domain.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var out domain.Customer
	err := r.g.with(func(st *state) error {
		for _, customer := range st.customers {
			if customer.Email == email {
				out = customer
				return nil
			}
		}
		now := r.g.store.clock.Now()
		out = domain.Customer{ID: uuid.NewString(), Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
		st.customers[out.ID] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r customerRepo) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	var out domain.Customer
	err := r.g.with(func(st *state) error {
		customer, ok := st.customers[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = customer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type agentRepo struct{ g guard }

func (r agentRepo) Create(_ context.Context, agent *domain.Agent) error {
	return r.g.with(func(st *state) error {
		email := strings.ToLower(agent.Email)
		for _, existing := range st.agents {
			if existing.Email == email {
				return fmt.Errorf("%w: agent email %s", repository.ErrDuplicate, email)
			}
		}
		now := r.g.store.clock.Now()
		agent.ID = uuid.NewString()
		agent.Email = email
		agent.CreatedAt = now
		agent.UpdatedAt = now
		st.agents[agent.ID] = *agent
		return nil
	})
}

func (r agentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	var out domain.Agent
	err := r.g.with(func(st *state) error {
		agent, ok := st.agents[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = agent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r agentRepo) GetByEmail(_ context.Context, email string) (*domain.Agent, error) {
	email = strings.ToLower(email)
	var out domain.Agent
	err := r.g.with(func(st *state) error {
		for _, agent := range st.agents {
			if agent.Email == email {
				out = agent
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
