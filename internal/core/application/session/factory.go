package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"merchantdispatch/internal/core/application/coordinator"
	"merchantdispatch/internal/core/application/reconcile"
	"merchantdispatch/internal/core/application/usecases/commands"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/domain/services"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/jobs"
	"merchantdispatch/internal/pkg/bus"
	"merchantdispatch/internal/pkg/errs"

	"golang.org/x/sync/errgroup"
)

// Settings are the timers and thresholds every new session gets.
type Settings struct {
	Engine             reconcile.Config
	PollInterval       time.Duration
	RetryPrompt        time.Duration
	RequestTimeout     time.Duration
	ClusterThresholdKm float64
	SpeedKmh           float64
	RouteMinInterval   time.Duration
	RouteMinMoveMeters float64
}

// Factory builds sessions. The bus, push channel and job manager are shared by
// every session of the process; Log and Routing are optional.
type Factory struct {
	Settings Settings

	Orders     ports.OrderAPI
	Businesses ports.BusinessAPI
	Dispatch   ports.DispatchAPI
	Drivers    ports.DriverAPI
	Push       ports.PushChannel
	Routing    ports.RoutingService
	Log        ports.DispatchLog
	Bus        *bus.Bus[reconcile.OrderUpdated]
	Jobs       *jobs.JobManager
	NewFeed    func() ports.NotificationFeed
	Logger     *slog.Logger
}

// OpenRequest identifies the business and the signed-in merchant user.
type OpenRequest struct {
	BusinessID string
	// User is the raw user context; the broadcast passenger_id is read from it.
	User map[string]any
}

func (f *Factory) validate() error {
	var errList []error
	if f.Orders == nil {
		errList = append(errList, errs.NewValueIsRequiredError("order api"))
	}
	if f.Businesses == nil {
		errList = append(errList, errs.NewValueIsRequiredError("business api"))
	}
	if f.Dispatch == nil {
		errList = append(errList, errs.NewValueIsRequiredError("dispatch api"))
	}
	if f.Drivers == nil {
		errList = append(errList, errs.NewValueIsRequiredError("driver api"))
	}
	if f.Push == nil {
		errList = append(errList, errs.NewValueIsRequiredError("push channel"))
	}
	if f.Bus == nil {
		errList = append(errList, errs.NewValueIsRequiredError("bus"))
	}
	if f.Jobs == nil {
		errList = append(errList, errs.NewValueIsRequiredError("job manager"))
	}
	if f.NewFeed == nil {
		errList = append(errList, errs.NewValueIsRequiredError("feed constructor"))
	}
	if f.Logger == nil {
		errList = append(errList, errs.NewValueIsRequiredError("logger"))
	}
	return errors.Join(errList...)
}

// Open hydrates the business and its orders, then wires and starts a session.
func (f *Factory) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if req.BusinessID == "" {
		return nil, errs.NewValueIsRequiredError("business_id")
	}

	var (
		details ports.BusinessDetails
		groups  []ports.OrderGroup
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		details, err = f.Businesses.Details(gctx, req.BusinessID)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = f.Orders.ListGrouped(gctx, req.BusinessID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hydrate business %s: %w", req.BusinessID, err)
	}
	if details.ID == "" {
		details.ID = req.BusinessID
	}

	id := kernel.NewUUID().String()
	logger := f.Logger.With("session_id", id)
	s := &Session{ID: id, Business: details, OpenedAt: time.Now(), Feed: f.NewFeed()}

	engine, err := reconcile.NewEngine(f.Settings.Engine, f.Bus, f.poller(req.BusinessID, details.DeliveryOption), s.Feed, logger)
	if err != nil {
		return nil, err
	}
	s.Engine = engine
	s.closers = append(s.closers, engine.Close)
	engine.Track(flatten(groups, details.DeliveryOption)...)

	coord, err := f.coordinator(details, req.User, engine, s.Feed, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Coordinator = coord
	s.closers = append(s.closers, coord.Close)

	deps := commands.Deps{Orders: engine, API: f.Orders, Sink: s.Feed, Logger: logger}
	s.Commands = Commands{
		Confirm:        commands.NewConfirmOrderCommandHandler(deps),
		Decline:        commands.NewDeclineOrderCommandHandler(deps),
		Advance:        commands.NewAdvanceOrderCommandHandler(deps),
		ChooseDelivery: commands.NewChooseDeliveryCommandHandler(deps),
	}

	poll, err := jobs.NewLivePollJob(engine, f.Settings.PollInterval, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Poll = poll
	if !engine.AllTerminal() {
		if err := f.Jobs.Add(id, poll); err != nil {
			s.Close()
			return nil, err
		}
	}
	s.closers = append(s.closers, func() { f.Jobs.Remove(id); poll.Stop() })

	join := func() { s.joinRooms(logger) }
	s.closers = append(s.closers, f.Push.OnReconnect(join))
	join()

	logger.InfoContext(ctx, "Session opened", "business_id", details.ID, "orders", len(engine.Orders()))
	return s, nil
}

func (f *Factory) coordinator(
	details ports.BusinessDetails,
	user map[string]any,
	engine *reconcile.Engine,
	sink ports.StateSink,
	logger *slog.Logger,
) (*coordinator.Coordinator, error) {
	clusterer := services.NewGeoClusterer()
	if f.Settings.ClusterThresholdKm > 0 {
		var err error
		if clusterer, err = services.NewGeoClustererWithThreshold(f.Settings.ClusterThresholdKm); err != nil {
			return nil, err
		}
	}

	minInterval, minMove := f.Settings.RouteMinInterval, f.Settings.RouteMinMoveMeters
	if minInterval <= 0 {
		minInterval = services.DefaultRouteMinInterval
	}
	if minMove <= 0 {
		minMove = services.DefaultRouteMinMoveMeters
	}
	speed := f.Settings.SpeedKmh
	if speed <= 0 {
		speed = services.DefaultSpeedKmh
	}
	var fetcher services.RouteFetcher
	if f.Routing != nil {
		fetcher = f.Routing
	}
	estimator, err := services.NewRouteEstimator(speed, services.NewPolylineGate(minInterval, minMove), fetcher)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = map[string]any{}
	}
	return coordinator.New(coordinator.Config{
		Business:       details,
		UserContext:    user,
		RetryPrompt:    f.Settings.RetryPrompt,
		RequestTimeout: f.Settings.RequestTimeout,
	}, coordinator.Deps{
		Engine:    engine,
		Clusterer: clusterer,
		Builder:   services.NewPayloadBuilder(),
		Estimator: estimator,
		Dispatch:  f.Dispatch,
		Drivers:   f.Drivers,
		Push:      f.Push,
		Sink:      sink,
		Log:       f.Log,
		Logger:    logger,
	})
}

func (f *Factory) poller(businessID string, opt order.DeliveryOption) reconcile.Poller {
	return reconcile.PollerFunc(func(ctx context.Context) ([]*order.Order, error) {
		groups, err := f.Orders.ListGrouped(ctx, businessID)
		if err != nil {
			return nil, err
		}
		return flatten(groups, opt), nil
	})
}

// joinRooms joins the business room and every active order room. Joins are
// idempotent; failures are retried on the next connect.
func (s *Session) joinRooms(logger *slog.Logger) {
	if !s.Coordinator.Mounted() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), coordinator.DefaultRequestTimeout)
	defer cancel()

	if err := s.Coordinator.JoinBusinessRoom(ctx, s.Business.ID); err != nil {
		logger.WarnContext(ctx, "Business room join failed", "error", err)
		return
	}
	for _, o := range s.Engine.Orders() {
		if o.IsTerminal() {
			continue
		}
		if err := s.Coordinator.JoinOrder(ctx, o.Key()); err != nil {
			logger.WarnContext(ctx, "Order room join failed", "order_id", o.Key(), "error", err)
			return
		}
	}
}

// flatten merges the groups and fills in the business delivery option where an
// order has none.
func flatten(groups []ports.OrderGroup, opt order.DeliveryOption) []*order.Order {
	var out []*order.Order
	for _, g := range groups {
		for _, o := range g.Orders {
			if o == nil {
				continue
			}
			o.InheritDeliveryOption(opt)
			out = append(out, o)
		}
	}
	return out
}
