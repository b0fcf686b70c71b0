package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/mail"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/sla"
)

// Job names double as lock keys.
const (
	JobBreachSweep = "sla-breach-sweep"
	JobMailPoll    = "mailbox-poll"
)

// BreachSweepJob flags overdue SLA timers.
func BreachSweepJob(engine *sla.Engine, interval time.Duration) Job {
	return Job{
		Name:     JobBreachSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := engine.CheckBreaches(ctx)
			return err
		},
	}
}

// InboundProcessor threads one inbound email.
type InboundProcessor interface {
	ProcessInboundEmail(ctx context.Context, rec domain.EmailRecord, mailbox *domain.Mailbox) (*service.InboundResult, error)
}

// MailPoller fetches new mail for every due mailbox and hands it to the correlator.
type MailPoller struct {
	store     repository.Store
	registry  *mail.Registry
	processor InboundProcessor
	clock     clock.Clock
	logger    *zap.Logger
}

// NewMailPoller builds a poller.
func NewMailPoller(store repository.Store, registry *mail.Registry, processor InboundProcessor, clk clock.Clock, logger *zap.Logger) *MailPoller {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailPoller{store: store, registry: registry, processor: processor, clock: clk, logger: logger}
}

// Job wraps PollOnce for the scheduler.
func (p *MailPoller) Job(interval time.Duration) Job {
	return Job{
		Name:     JobMailPoll,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := p.PollOnce(ctx)
			return err
		},
	}
}

// PollOnce polls the mailboxes whose interval has elapsed and returns how many
// emails were processed. A failing email is logged and skipped; a failing
// mailbox does not stop the others.
func (p *MailPoller) PollOnce(ctx context.Context) (int, error) {
	repos := p.store.Repos()
	mailboxes, err := repos.Mailboxes.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list mailboxes: %w", err)
	}

	processed := 0
	var errs []error
	for i := range mailboxes {
		mailbox := &mailboxes[i]
		now := p.clock.Now()
		if !mailbox.IsDue(now) {
			continue
		}
		fetcher, ok := p.registry.Fetcher(mailbox.ID)
		if !ok {
			p.logger.Warn("no fetcher for mailbox", zap.String("mailbox_id", mailbox.ID))
			continue
		}
		n, err := p.pollMailbox(ctx, fetcher, mailbox)
		processed += n
		if err != nil {
			errs = append(errs, fmt.Errorf("mailbox %s: %w", mailbox.ID, err))
			continue
		}
		if err := repos.Mailboxes.MarkChecked(ctx, mailbox.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("mark mailbox %s checked: %w", mailbox.ID, err))
		}
	}
	return processed, errors.Join(errs...)
}

func (p *MailPoller) pollMailbox(ctx context.Context, fetcher mail.Fetcher, mailbox *domain.Mailbox) (int, error) {
	records, fetchErr := fetcher.FetchNewEmails(ctx, mailbox.LastCheckedAt)
	if fetchErr != nil && len(records) == 0 {
		return 0, fetchErr
	}
	if fetchErr != nil {
		p.logger.Warn("some inbound records were unreadable",
			zap.String("mailbox_id", mailbox.ID), zap.Error(fetchErr))
	}

	processed := 0
	for _, rec := range records {
		res, err := p.processor.ProcessInboundEmail(ctx, rec, mailbox)
		if err != nil {
			p.logger.Error("inbound email failed",
				zap.String("mailbox_id", mailbox.ID),
				zap.String("message_id", rec.MessageID),
				zap.Error(err))
			continue
		}
		processed++
		p.logger.Debug("inbound email threaded",
			zap.String("ticket_number", res.Ticket.TicketNumber),
			zap.String("strategy", res.Strategy))
	}
	return processed, nil
}
