package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Registry maps mailbox ids to their fetchers.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
	fallback func(mailboxID string) Fetcher
}

// NewRegistry builds a registry. fallback, when set, supplies a fetcher for
// mailboxes without an explicit registration.
func NewRegistry(fallback func(mailboxID string) Fetcher) *Registry {
	return &Registry{fetchers: map[string]Fetcher{}, fallback: fallback}
}

// Register binds f to mailboxID.
func (r *Registry) Register(mailboxID string, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[mailboxID] = f
}

// Fetcher returns the fetcher for mailboxID.
func (r *Registry) Fetcher(mailboxID string) (Fetcher, bool) {
	r.mu.RLock()
	f, ok := r.fetchers[mailboxID]
	r.mu.RUnlock()
	if ok {
		return f, true
	}
	if r.fallback != nil {
		if f := r.fallback(mailboxID); f != nil {
			return f, true
		}
	}
	return nil, false
}

// InboundKey is the Redis list an external connector fills for a mailbox.
func InboundKey(mailboxID string) string {
	return "helpdesk:inbound:" + mailboxID
}

// RedisFetcher drains EmailRecord JSON documents pushed by an external mail
// connector onto a Redis list. Records are removed as they are read.
type RedisFetcher struct {
	client *redis.Client
	key    string
	batch  int
}

// NewRedisFetcher reads at most batch records per call from key.
func NewRedisFetcher(client *redis.Client, key string, batch int) *RedisFetcher {
	if batch <= 0 {
		batch = 50
	}
	return &RedisFetcher{client: client, key: key, batch: batch}
}

// FetchNewEmails implements Fetcher. The connector only pushes unseen mail, so
// since is not consulted. Undecodable records are returned as an error after
// the valid ones are collected.
func (f *RedisFetcher) FetchNewEmails(ctx context.Context, _ *time.Time) ([]domain.EmailRecord, error) {
	raw, err := f.client.LPopCount(ctx, f.key, f.batch).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	records := make([]domain.EmailRecord, 0, len(raw))
	var decodeErrs []error
	for i, item := range raw {
		var rec domain.EmailRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			decodeErrs = append(decodeErrs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, errors.Join(decodeErrs...)
}
