package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/mail"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// Outbound delivery results recorded in metrics.
const (
	OutboundSent    = "sent"
	OutboundRetried = "retried"
	OutboundDropped = "dropped"
)

// OutboundSource is the queue side the consumer needs.
type OutboundSource interface {
	Dequeue(ctx context.Context, block time.Duration) (*mail.OutboundEmail, error)
	Requeue(ctx context.Context, email mail.OutboundEmail, maxRetries int) (bool, error)
}

// NotificationWorker delivers queued agent replies.
type NotificationWorker struct {
	queue      OutboundSource
	sender     mail.Sender
	maxRetries int
	block      time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewNotificationWorker builds the consumer.
func NewNotificationWorker(queue OutboundSource, sender mail.Sender, maxRetries int, block time.Duration, logger *zap.Logger, metrics *observability.Metrics) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &NotificationWorker{
		queue:      queue,
		sender:     sender,
		maxRetries: maxRetries,
		block:      block,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start consumes the queue until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info("notification worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("notification worker stopped")
			return
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Error("outbound queue", zap.Error(err))
			// Back off so a broken Redis connection does not spin.
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOne delivers at most one email. It reports whether an email was taken
// off the queue. Send failures are requeued, not returned.
func (w *NotificationWorker) ProcessOne(ctx context.Context) (bool, error) {
	email, err := w.queue.Dequeue(ctx, w.block)
	if err != nil || email == nil {
		return false, err
	}

	if err := w.sender.Send(ctx, *email); err != nil {
		retry, qerr := w.queue.Requeue(ctx, *email, w.maxRetries)
		if qerr != nil {
			return true, qerr
		}
		result := OutboundRetried
		if !retry {
			result = OutboundDropped
		}
		w.metrics.RecordOutbound(result)
		w.logger.Warn("outbound email failed",
			zap.String("ticket_id", email.TicketID),
			zap.String("email_id", email.ID),
			zap.Int("attempt", email.Attempts+1),
			zap.Bool("will_retry", retry),
			zap.Error(err))
		return true, nil
	}

	w.metrics.RecordOutbound(OutboundSent)
	w.logger.Info("outbound email sent",
		zap.String("ticket_id", email.TicketID),
		zap.String("email_id", email.ID),
		zap.String("header_message_id", email.HeaderID))
	return true, nil
}
