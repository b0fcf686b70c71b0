package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/app"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/mail"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/worker"
)

const inboundBatch = 50

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer core.Close()

	client := core.Redis.Client
	registry := mail.NewRegistry(func(mailboxID string) mail.Fetcher {
		return mail.NewRedisFetcher(client, mail.InboundKey(mailboxID), inboundBatch)
	})
	poller := worker.NewMailPoller(core.Store, registry, core.Correlator, core.Clock, logger)

	scheduler := worker.NewScheduler(worker.NewRedisLock(client, ""), cfg.Worker.LockTTL, logger)
	scheduler.Add(worker.BreachSweepJob(core.SLA, cfg.Worker.BreachSweepInterval))
	scheduler.Add(poller.Job(cfg.Worker.MailPollInterval))

	var sender mail.Sender
	if cfg.SMTP.Host != "" {
		sender = mail.NewSMTPSender(cfg.SMTP, nil)
	} else {
		logger.Warn("SMTP_HOST not provided; outbound queue will not be consumed")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()
	if sender != nil {
		notifier := worker.NewNotificationWorker(core.Outbound, sender, cfg.Worker.OutboundMaxRetries, cfg.Worker.OutboundBlock, logger, core.Metrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			notifier.Start(ctx)
		}()
	}

	logger.Info("worker started",
		zap.Duration("breach_sweep_interval", cfg.Worker.BreachSweepInterval),
		zap.Duration("mail_poll_interval", cfg.Worker.MailPollInterval))

	<-ctx.Done()
	logger.Info("shutting down worker")
	wg.Wait()
}
