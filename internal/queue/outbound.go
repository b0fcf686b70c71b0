// Package queue carries outbound replies from the API process to the mail worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk/internal/mail"
)

const (
	// DefaultKey is the Redis list holding pending outbound mail.
	DefaultKey = "helpdesk:outbound"
	deadSuffix = ":dead"
)

// Outbound is a FIFO of outbound emails stored in a Redis list.
type Outbound struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewOutbound builds a queue on key; an empty key uses DefaultKey.
func NewOutbound(client *redis.Client, key string) *Outbound {
	if key == "" {
		key = DefaultKey
	}
	return &Outbound{client: client, key: key, now: time.Now}
}

// Enqueue appends email to the tail of the queue.
func (q *Outbound) Enqueue(ctx context.Context, email mail.OutboundEmail) error {
	if email.QueuedAt.IsZero() {
		email.QueuedAt = q.now().UTC()
	}
	payload, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("encode outbound email: %w", err)
	}
	return q.client.RPush(ctx, q.key, payload).Err()
}

// Dequeue pops the oldest email, waiting up to block. It returns nil, nil
// when nothing arrived in time.
func (q *Outbound) Dequeue(ctx context.Context, block time.Duration) (*mail.OutboundEmail, error) {
	var (
		raw string
		err error
	)
	if block <= 0 {
		raw, err = q.client.LPop(ctx, q.key).Result()
	} else {
		var pair []string
		pair, err = q.client.BLPop(ctx, block, q.key).Result()
		if err == nil {
			raw = pair[1]
		}
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var email mail.OutboundEmail
	if err := json.Unmarshal([]byte(raw), &email); err != nil {
		return nil, fmt.Errorf("decode outbound email: %w", err)
	}
	return &email, nil
}

// Requeue records a failed attempt and pushes email back for another try.
// Once maxRetries attempts are used the email moves to the dead-letter list
// and Requeue reports false.
func (q *Outbound) Requeue(ctx context.Context, email mail.OutboundEmail, maxRetries int) (bool, error) {
	email.Attempts++
	target := q.key
	retry := email.Attempts < maxRetries
	if !retry {
		target = q.DeadLetterKey()
	}
	payload, err := json.Marshal(email)
	if err != nil {
		return false, fmt.Errorf("encode outbound email: %w", err)
	}
	if err := q.client.RPush(ctx, target, payload).Err(); err != nil {
		return false, err
	}
	return retry, nil
}

// Len returns the number of pending emails.
func (q *Outbound) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// DeadLetterKey is the list receiving emails that exhausted their retries.
func (q *Outbound) DeadLetterKey() string {
	return q.key + deadSuffix
}
