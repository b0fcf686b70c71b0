// Package app assembles the services shared by the API and worker binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/queue"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/sequence"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/sla"
	"github.com/spec-kit/helpdesk/internal/storage"
)

// Core holds the wired domain services and their backing connections.
type Core struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      clock.Clock
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Store      repository.Store
	Dispatcher events.Dispatcher
	Sequence   *sequence.Generator
	SLA        *sla.Engine
	Tickets    *service.TicketService
	Correlator *service.Correlator
	Admin      *service.AdminService
	Outbound   *queue.Outbound
}

// Build connects to Postgres and Redis and wires the ticket, SLA and mail
// correlation services. Without POSTGRES_DSN the store is kept in memory.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Core, error) {
	core := &Core{
		Config:     cfg,
		Logger:     logger,
		Metrics:    observability.NewMetrics(),
		Clock:      clock.Real(),
		Dispatcher: events.NewInMemoryDispatcher(logger),
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	core.Postgres = pg

	var counter sequence.CounterStore
	prefix := cfg.Helpdesk.TicketPrefix
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		core.Store = repository.NewPostgresStore(pg.PoolHandle())
		prefix, err = core.Store.Repos().Settings.Get(ctx, repository.SettingTicketPrefix, prefix)
		if err != nil {
			pg.Close()
			return nil, fmt.Errorf("load ticket prefix: %w", err)
		}
		counter = repository.NewTicketCounter(pg.PoolHandle(), prefix)
	} else {
		logger.Warn("using in-memory store; data is lost on restart")
		mem := memory.NewStore(core.Clock)
		core.Store = mem
		counter = memory.NewCounter(mem, prefix)
	}

	core.Sequence, err = sequence.NewGenerator(counter, prefix)
	if err != nil {
		pg.Close()
		return nil, err
	}

	core.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	core.Outbound = queue.NewOutbound(core.Redis.Client, queue.DefaultKey)

	sink, err := newSink(ctx, cfg.Storage, logger)
	if err != nil {
		core.Close()
		return nil, err
	}

	core.SLA = sla.NewEngine(core.Store, core.Clock, core.Dispatcher, logger, core.Metrics)
	core.Tickets = service.NewTicketService(service.TicketDependencies{
		Store:      core.Store,
		Sequence:   core.Sequence,
		SLA:        core.SLA,
		Dispatcher: core.Dispatcher,
		Clock:      core.Clock,
		Logger:     logger,
	})
	core.Correlator = service.NewCorrelator(service.CorrelatorDependencies{
		Store:    core.Store,
		Tickets:  core.Tickets,
		Sequence: core.Sequence,
		Sink:     sink,
		Logger:   logger,
		Metrics:  core.Metrics,
	})
	core.Admin = service.NewAdminService(core.Store, cfg.Auth.BcryptCost)

	service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: core.Dispatcher,
		Store:      core.Store,
		Correlator: core.Correlator,
		Queue:      core.Outbound,
		MailDomain: cfg.Helpdesk.MailDomain,
		Logger:     logger,
	}).RegisterHandlers()

	if cfg.Auth.BootstrapAdminEmail != "" {
		created, err := core.Admin.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword)
		if err != nil {
			core.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("email", cfg.Auth.BootstrapAdminEmail))
		}
	}

	logger.Info("helpdesk core ready",
		zap.String("ticket_prefix", prefix),
		zap.Bool("postgres", pg.Enabled()))
	return core, nil
}

func newSink(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Sink, error) {
	if cfg.Endpoint == "" {
		logger.Warn("MINIO_ENDPOINT not provided; attachments kept in memory")
		return storage.NewMemorySink(), nil
	}
	client, err := storage.NewMinioClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	sink, err := storage.NewMinioSink(ctx, client, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	logger.Info("attachments stored in minio", zap.String("bucket", cfg.Bucket))
	return sink, nil
}

// Close releases database and cache connections.
func (c *Core) Close() {
	c.Redis.Close()
	c.Postgres.Close()
}
