package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	httpin "merchantdispatch/internal/adapters/in/http"
	"merchantdispatch/internal/adapters/out/merchantapi"
	"merchantdispatch/internal/adapters/out/notify"
	"merchantdispatch/internal/adapters/out/postgres"
	"merchantdispatch/internal/adapters/out/pushchannel"
	"merchantdispatch/internal/adapters/out/routing"
	"merchantdispatch/internal/core/application/reconcile"
	"merchantdispatch/internal/core/application/session"
	"merchantdispatch/internal/core/application/usecases/queries"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/jobs"
	"merchantdispatch/internal/pkg/bus"

	"gorm.io/gorm"
)

// CompositionRoot owns the process-wide collaborators: the REST client, the push
// channel, the job manager and the session registry.
type CompositionRoot struct {
	cfg        Config
	gormDB     *gorm.DB
	uowFactory *postgres.GormUnitOfWorkFactory
	logger     *slog.Logger

	merchant *merchantapi.Client
	push     *pushchannel.Client
	jobs     *jobs.JobManager
	sessions *session.Registry
}

func NewCompositionRoot(cfg Config, gormDB *gorm.DB, logger *slog.Logger) (*CompositionRoot, error) {
	httpClient := &http.Client{}

	merchant, err := merchantapi.NewClient(merchantapi.Config{
		BaseURL:      cfg.APIBaseURL,
		Token:        cfg.APIToken,
		Timeout:      cfg.RequestTimeout,
		ProbeTimeout: cfg.ProbeTimeout,
	}, httpClient, logger)
	if err != nil {
		return nil, err
	}
	push, err := pushchannel.NewClient(pushchannel.Config{URL: cfg.PushURL, Token: cfg.PushToken}, logger)
	if err != nil {
		return nil, err
	}

	c := &CompositionRoot{
		cfg:        cfg,
		gormDB:     gormDB,
		uowFactory: postgres.NewGormUnitOfWorkFactory(gormDB),
		logger:     logger,
		merchant:   merchant,
		push:       push,
		jobs:       jobs.NewJobManager(logger),
	}

	factory := &session.Factory{
		Settings: session.Settings{
			Engine:             reconcile.Config{Debounce: cfg.Debounce, FetchTimeout: cfg.RequestTimeout},
			PollInterval:       cfg.PollInterval,
			RetryPrompt:        cfg.RetryPrompt,
			RequestTimeout:     cfg.RequestTimeout,
			ClusterThresholdKm: cfg.ClusterThresholdKm,
			SpeedKmh:           cfg.SpeedKmh,
			RouteMinInterval:   cfg.RouteMinInterval,
			RouteMinMoveMeters: cfg.RouteMinMoveMeters,
		},
		Orders:     merchant,
		Businesses: merchant,
		Dispatch:   merchant,
		Drivers:    merchant,
		Push:       push,
		Log:        postgres.NewGormDispatchLog(c.uowFactory),
		Bus:        bus.New[reconcile.OrderUpdated](),
		Jobs:       c.jobs,
		NewFeed: func() ports.NotificationFeed {
			return notify.NewFeed(cfg.FeedCapacity)
		},
		Logger: logger,
	}
	if cfg.RoutingURL != "" {
		osrm, err := routing.NewOSRMClient(cfg.RoutingURL, httpClient)
		if err != nil {
			return nil, err
		}
		factory.Routing = osrm
	}
	c.sessions = session.NewRegistry(factory)
	return c, nil
}

// RunPushChannel keeps the push connection open until ctx is done.
func (c *CompositionRoot) RunPushChannel(ctx context.Context) {
	if err := c.push.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Push channel stopped", "error", err)
	}
}

func (c *CompositionRoot) CreateServer() *httpin.Server {
	return httpin.NewServer(
		c.sessions,
		c.merchant,
		c.CreateGetDispatchHistoryQueryHandler(),
		c.CreateGetDriverAssignmentsQueryHandler(),
		c.logger,
	)
}

func (c *CompositionRoot) CreateGetDispatchHistoryQueryHandler() queries.GetDispatchHistoryQueryHandler {
	return queries.NewGetDispatchHistoryQueryHandler(c.gormDB)
}

func (c *CompositionRoot) CreateGetDriverAssignmentsQueryHandler() queries.GetDriverAssignmentsQueryHandler {
	return queries.NewGetDriverAssignmentsQueryHandler(c.gormDB)
}

// Shutdown stops every poll job, closes the sessions and the push channel.
func (c *CompositionRoot) Shutdown() {
	c.jobs.StopAll()
	c.sessions.CloseAll()
	if err := c.push.Close(); err != nil {
		c.logger.Warn("Push channel close failed", "error", err)
	}
}
