package repository

import (
	"context"
	"strings"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/persistence"
)

// CustomerRepository resolves customers by their case-insensitive email.
type CustomerRepository interface {
	// FindOrCreateByEmail returns the customer owning email, creating it when absent.
	FindOrCreateByEmail(ctx context.Context, email, name string) (*domain.Customer, error)
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
}

type customerRepository struct {
	db persistence.Querier
}

// NewCustomerRepository builds repository.
func NewCustomerRepository(db persistence.Querier) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) FindOrCreateByEmail(ctx context.Context, email, name string) (*domain.Customer, error) {
	// The no-op DO UPDATE makes RETURNING yield the existing row on conflict.
	const query = `
        INSERT INTO customers (email, name) VALUES ($1, $2)
        ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
        RETURNING id, email, name, created_at, updated_at`
	var customer domain.Customer
	if err := r.db.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email)), name).Scan(
		&customer.ID,
		&customer.Email,
		&customer.Name,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	const query = `SELECT id, email, name, created_at, updated_at FROM customers WHERE id=$1`
	var customer domain.Customer
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&customer.ID,
		&customer.Email,
		&customer.Name,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &customer, nil
}
