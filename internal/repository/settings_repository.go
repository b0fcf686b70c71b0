package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/helpdesk/internal/persistence"
)

// SettingTicketPrefix is the settings key holding the ticket number prefix.
const SettingTicketPrefix = "ticket_prefix"

// SettingsRepository is a small key/value store for runtime settings.
type SettingsRepository interface {
	// Get returns the stored value for key, or fallback when the key is unset.
	Get(ctx context.Context, key, fallback string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type settingsRepository struct {
	db persistence.Querier
}

// NewSettingsRepository builds repository.
func NewSettingsRepository(db persistence.Querier) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	const query = `
        INSERT INTO settings (key, value) VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	_, err := r.db.Exec(ctx, query, key, value)
	return err
}
