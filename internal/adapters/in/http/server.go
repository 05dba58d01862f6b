package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"merchantdispatch/internal/core/application/coordinator"
	"merchantdispatch/internal/core/application/session"
	"merchantdispatch/internal/core/application/usecases/commands"
	"merchantdispatch/internal/core/application/usecases/queries"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/errs"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// DefaultFeedLimit caps a notifications page when the client sends no limit.
const DefaultFeedLimit = 100

// Server exposes merchant sessions over HTTP. Every session-scoped route resolves
// the session first and answers 404 when it is not open.
type Server struct {
	sessions *session.Registry
	probe    ports.HealthProbe

	// Query handlers
	history     queries.GetDispatchHistoryQueryHandler
	assignments queries.GetDriverAssignmentsQueryHandler

	logger *slog.Logger
}

// NewServer creates the HTTP server over the session registry and the read-side
// query handlers.
func NewServer(
	sessions *session.Registry,
	probe ports.HealthProbe,
	history queries.GetDispatchHistoryQueryHandler,
	assignments queries.GetDriverAssignmentsQueryHandler,
	logger *slog.Logger,
) *Server {
	return &Server{
		sessions:    sessions,
		probe:       probe,
		history:     history,
		assignments: assignments,
		logger:      logger.With("component", "http"),
	}
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.Health)

	api := e.Group("/api/v1")
	api.POST("/sessions", s.OpenSession)
	api.DELETE("/sessions/:id", s.CloseSession)
	api.POST("/sessions/:id/focus", s.Focus)
	api.GET("/sessions/:id/notifications", s.Notifications)

	api.GET("/sessions/:id/orders", s.GetOrders)
	api.POST("/sessions/:id/orders/:order/advance", s.AdvanceOrder)
	api.POST("/sessions/:id/orders/:order/confirm", s.ConfirmOrder)
	api.POST("/sessions/:id/orders/:order/decline", s.DeclineOrder)
	api.POST("/sessions/:id/orders/:order/delivery", s.ChooseDelivery)

	api.GET("/sessions/:id/batches", s.GetBatches)
	api.POST("/sessions/:id/batches/plan", s.PlanBatches)
	api.GET("/sessions/:id/batches/:key/route", s.GetRoute)
	api.POST("/sessions/:id/batches/:key/dispatch", s.Dispatch)
	api.POST("/sessions/:id/batches/:key/resend", s.Resend)
	api.POST("/sessions/:id/batches/:key/resend/decline", s.DeclineResend)

	api.GET("/dispatches/:batch", s.GetDispatchHistory)
	api.GET("/assignments", s.GetAssignments)
}

// Health handles GET /health - probes the merchant backend.
func (s *Server) Health(ctx echo.Context) error {
	if err := s.probe.Probe(ctx.Request().Context()); err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, Error{
			Code:    http.StatusServiceUnavailable,
			Message: "Merchant backend is unreachable",
		})
	}
	return ctx.NoContent(http.StatusNoContent)
}

// OpenSession handles POST /api/v1/sessions - hydrates a business and starts its
// live poll.
func (s *Server) OpenSession(ctx echo.Context) error {
	var req OpenSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	sess, err := s.sessions.Open(ctx.Request().Context(), session.OpenRequest{
		BusinessID: req.BusinessID,
		User:       req.User,
	})
	if err != nil {
		s.logger.Warn("Session not opened", "business_id", req.BusinessID, "error", err)
		return fail(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, sessionOf(sess))
}

// CloseSession handles DELETE /api/v1/sessions/:id.
func (s *Server) CloseSession(ctx echo.Context) error {
	if err := s.sessions.Close(ctx.Param("id")); err != nil {
		return fail(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Focus handles POST /api/v1/sessions/:id/focus - refreshes now and resumes polling.
func (s *Server) Focus(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	if err := sess.Focus(ctx.Request().Context()); err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, sessionOf(sess))
}

// Notifications handles GET /api/v1/sessions/:id/notifications?after=&limit=.
func (s *Server) Notifications(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	after, err := uintParam(ctx.QueryParam("after"), 0)
	if err != nil {
		return badRequest(ctx, "Invalid after")
	}
	limit, err := uintParam(ctx.QueryParam("limit"), DefaultFeedLimit)
	if err != nil || limit == 0 {
		return badRequest(ctx, "Invalid limit")
	}

	entries := sess.Feed.Since(after, int(limit))
	return ctx.JSON(http.StatusOK, lo.Map(entries, func(e ports.FeedEntry, _ int) Notification {
		return notificationOf(e)
	}))
}

// GetOrders handles GET /api/v1/sessions/:id/orders.
func (s *Server) GetOrders(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, lo.Map(sess.Orders(), func(o *order.Order, _ int) OrderResponse {
		return orderOf(o)
	}))
}

// AdvanceOrder handles POST /api/v1/sessions/:id/orders/:order/advance.
func (s *Server) AdvanceOrder(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	var body ReasonRequest
	if err := bindOptional(ctx, &body); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	cmd, err := commands.NewAdvanceOrderCommand(ctx.Param("order"), body.Reason)
	if err != nil {
		return fail(ctx, err)
	}
	if _, err := sess.Commands.Advance.Handle(ctx.Request().Context(), cmd); err != nil {
		return fail(ctx, err)
	}
	return s.orderReply(ctx, sess, ctx.Param("order"))
}

// ConfirmOrder handles POST /api/v1/sessions/:id/orders/:order/confirm.
func (s *Server) ConfirmOrder(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	var body ConfirmRequest
	if err := ctx.Bind(&body); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	unavailable := lo.Map(body.Unavailable, func(u UnavailableRequest, _ int) commands.UnavailableItem {
		item := commands.UnavailableItem{MenuID: u.MenuID}
		if r := u.Replacement; r != nil {
			item.Replacement = &order.Item{
				BusinessID:   r.BusinessID,
				BusinessName: r.BusinessName,
				MenuID:       r.MenuID,
				Name:         r.Name,
				Image:        r.Image,
				Quantity:     r.Quantity,
				UnitPrice:    r.Price,
				Available:    true,
			}
		}
		return item
	})
	cmd, err := commands.NewConfirmOrderCommand(ctx.Param("order"), body.EstimatedMinutes, body.Reason, unavailable)
	if err != nil {
		return fail(ctx, err)
	}
	res, err := sess.Commands.Confirm.Handle(ctx.Request().Context(), cmd)
	if err != nil {
		return fail(ctx, err)
	}

	o, ok := sess.Engine.Order(ctx.Param("order"))
	if !ok {
		return fail(ctx, errs.NewObjectNotFoundError("order", ctx.Param("order")))
	}
	return ctx.JSON(http.StatusOK, ConfirmResponse{Order: orderOf(o), Changes: res.Changes})
}

// DeclineOrder handles POST /api/v1/sessions/:id/orders/:order/decline.
func (s *Server) DeclineOrder(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	var body DeclineRequest
	if err := ctx.Bind(&body); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	cmd, err := commands.NewDeclineOrderCommand(ctx.Param("order"), body.Reason, body.DeclinedBy)
	if err != nil {
		return fail(ctx, err)
	}
	if err := sess.Commands.Decline.Handle(ctx.Request().Context(), cmd); err != nil {
		return fail(ctx, err)
	}
	return s.orderReply(ctx, sess, ctx.Param("order"))
}

// ChooseDelivery handles POST /api/v1/sessions/:id/orders/:order/delivery.
func (s *Server) ChooseDelivery(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	var body DeliveryRequest
	if err := ctx.Bind(&body); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	cmd, err := commands.NewChooseDeliveryCommand(ctx.Param("order"), order.ParseDeliveryOption(body.Option))
	if err != nil {
		return fail(ctx, err)
	}
	if err := sess.Commands.ChooseDelivery.Handle(ctx.Request().Context(), cmd); err != nil {
		return fail(ctx, err)
	}
	return s.orderReply(ctx, sess, ctx.Param("order"))
}

func (s *Server) orderReply(ctx echo.Context, sess *session.Session, orderID string) error {
	o, ok := sess.Engine.Order(orderID)
	if !ok {
		return fail(ctx, errs.NewObjectNotFoundError("order", orderID))
	}
	return ctx.JSON(http.StatusOK, orderOf(o))
}

// GetBatches handles GET /api/v1/sessions/:id/batches.
func (s *Server) GetBatches(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, lo.Map(sess.Coordinator.Batches(), func(v coordinator.BatchView, _ int) BatchResponse {
		return batchOf(v)
	}))
}

// PlanBatches handles POST /api/v1/sessions/:id/batches/plan - freezes clusters of
// dispatchable orders into new batches.
func (s *Server) PlanBatches(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	created, unclustered, err := sess.Coordinator.PlanBatches()
	if err != nil {
		return fail(ctx, err)
	}

	resp := PlanResponse{
		Created:     make([]BatchResponse, 0, len(created)),
		Unclustered: lo.Map(unclustered, func(o *order.Order, _ int) string { return o.Key() }),
	}
	for _, b := range created {
		v, err := sess.Coordinator.Batch(b.Key().String())
		if err != nil {
			continue
		}
		resp.Created = append(resp.Created, batchOf(v))
	}
	return ctx.JSON(http.StatusCreated, resp)
}

// GetRoute handles GET /api/v1/sessions/:id/batches/:key/route.
func (s *Server) GetRoute(ctx echo.Context) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	route, err := sess.Coordinator.Route(ctx.Param("key"))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, RouteResponse{
		Polyline: lo.Map(route.Polyline, func(c kernel.Coordinates, _ int) Location {
			return Location{Lat: c.Lat(), Lng: c.Lng()}
		}),
		DistanceKm:      route.DistanceKm,
		DurationMinutes: route.DurationMinutes,
	})
}

// Dispatch handles POST /api/v1/sessions/:id/batches/:key/dispatch - sends the
// first broadcast of a batch.
func (s *Server) Dispatch(ctx echo.Context) error {
	return s.batchAction(ctx, func(sess *session.Session, key string) error {
		return sess.Coordinator.SendBroadcast(ctx.Request().Context(), key)
	})
}

// Resend handles POST /api/v1/sessions/:id/batches/:key/resend.
func (s *Server) Resend(ctx echo.Context) error {
	return s.batchAction(ctx, func(sess *session.Session, key string) error {
		return sess.Coordinator.Resend(ctx.Request().Context(), key)
	})
}

// DeclineResend handles POST /api/v1/sessions/:id/batches/:key/resend/decline.
func (s *Server) DeclineResend(ctx echo.Context) error {
	return s.batchAction(ctx, func(sess *session.Session, key string) error {
		return sess.Coordinator.DeclineResend(key)
	})
}

func (s *Server) batchAction(ctx echo.Context, action func(sess *session.Session, key string) error) error {
	sess, err := s.sessions.Get(ctx.Param("id"))
	if err != nil {
		return fail(ctx, err)
	}
	key := ctx.Param("key")
	if err := action(sess, key); err != nil {
		return fail(ctx, err)
	}
	v, err := sess.Coordinator.Batch(key)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, batchOf(v))
}

// GetDispatchHistory handles GET /api/v1/dispatches/:batch.
func (s *Server) GetDispatchHistory(ctx echo.Context) error {
	key, err := kernel.UUIDFromString(ctx.Param("batch"))
	if err != nil {
		return badRequest(ctx, "Invalid batch key")
	}
	query, err := queries.NewGetDispatchHistoryQuery(key)
	if err != nil {
		return fail(ctx, err)
	}

	history, err := s.history.Handle(ctx.Request().Context(), query)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, historyOf(history))
}

// GetAssignments handles GET /api/v1/assignments?en_route=true.
func (s *Server) GetAssignments(ctx echo.Context) error {
	onlyEnRoute := false
	if raw := ctx.QueryParam("en_route"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(ctx, "Invalid en_route")
		}
		onlyEnRoute = v
	}

	drivers, err := s.assignments.Handle(ctx.Request().Context(), queries.NewGetDriverAssignmentsQuery(onlyEnRoute))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, lo.Map(drivers, func(d queries.AssignedDriver, _ int) AssignedDriver {
		return assignedDriverOf(d)
	}))
}

func sessionOf(sess *session.Session) SessionResponse {
	return SessionResponse{
		ID:           sess.ID,
		BusinessID:   sess.Business.ID,
		BusinessName: sess.Business.Name,
		OpenedAt:     sess.OpenedAt,
		Orders:       len(sess.Orders()),
		Polling:      sess.Poll.Running(),
	}
}

func uintParam(raw string, def uint64) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(ctx echo.Context, dst any) error {
	if ctx.Request().ContentLength == 0 {
		return nil
	}
	return ctx.Bind(dst)
}
