package http_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpin "merchantdispatch/internal/adapters/in/http"
	"merchantdispatch/internal/adapters/out/notify"
	"merchantdispatch/internal/core/application/reconcile"
	"merchantdispatch/internal/core/application/session"
	"merchantdispatch/internal/core/application/usecases/queries"
	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/jobs"
	"merchantdispatch/internal/pkg/bus"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type orderAPIMock struct{ mock.Mock }

func (m *orderAPIMock) UpdateStatus(ctx context.Context, code string, change ports.StatusChange) error {
	return m.Called(ctx, code, change).Error(0)
}

func (m *orderAPIMock) ListGrouped(ctx context.Context, businessID string) ([]ports.OrderGroup, error) {
	args := m.Called(ctx, businessID)
	groups, _ := args.Get(0).([]ports.OrderGroup)
	return groups, args.Error(1)
}

type staticBusiness struct{}

func (staticBusiness) Details(_ context.Context, businessID string) (ports.BusinessDetails, error) {
	return ports.BusinessDetails{
		ID:             businessID,
		Name:           "Cafe",
		Currency:       "BTN",
		DeliveryOption: order.Grab,
		Location:       kernel.MustCoordinates(27.4728, 89.6390),
	}, nil
}

type unusedDispatch struct{}

func (unusedDispatch) Broadcast(context.Context, dispatch.Payload) (ports.BroadcastResult, error) {
	return ports.BroadcastResult{}, errors.New("not expected")
}

type unusedDrivers struct{}

func (unusedDrivers) Driver(context.Context, string) (ports.DriverDetails, error) {
	return ports.DriverDetails{}, errors.New("not expected")
}

func (unusedDrivers) Rating(context.Context, string) (float64, error) { return 0, errors.New("not expected") }

type quietPush struct{}

func (quietPush) Emit(context.Context, string, any) error { return nil }
func (quietPush) Subscribe(string, func([]byte)) func()  { return func() {} }
func (quietPush) OnReconnect(func()) func()              { return func() {} }

type probeFunc func(ctx context.Context) error

func (f probeFunc) Probe(ctx context.Context) error { return f(ctx) }

type fixture struct {
	echo   *echo.Echo
	orders *orderAPIMock
	probe  error
}

func newFixture(t *testing.T, hydrated ...*order.Order) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{orders: &orderAPIMock{}}
	f.orders.On("ListGrouped", mock.Anything, "biz-1").Return([]ports.OrderGroup{
		{User: map[string]any{"id": "u-9"}, Orders: hydrated},
	}, nil)

	jobManager := jobs.NewJobManager(logger)
	t.Cleanup(jobManager.StopAll)
	registry := session.NewRegistry(&session.Factory{
		Settings: session.Settings{
			Engine:       reconcile.Config{Debounce: time.Hour},
			PollInterval: time.Hour,
		},
		Orders:     f.orders,
		Businesses: staticBusiness{},
		Dispatch:   unusedDispatch{},
		Drivers:    unusedDrivers{},
		Push:       quietPush{},
		Bus:        bus.New[reconcile.OrderUpdated](),
		Jobs:       jobManager,
		NewFeed:    func() ports.NotificationFeed { return notify.NewFeed(16) },
		Logger:     logger,
	})
	t.Cleanup(registry.CloseAll)

	f.echo = echo.New()
	f.echo.JSONSerializer = httpin.JSONSerializer{}
	f.echo.HTTPErrorHandler = httpin.HTTPErrorHandler
	probe := probeFunc(func(context.Context) error { return f.probe })
	httpin.NewServer(
		registry,
		probe,
		queries.NewGetDispatchHistoryQueryHandler(nil),
		queries.NewGetDriverAssignmentsQueryHandler(nil),
		logger,
	).Register(f.echo)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *nethttp.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) open(t *testing.T) string {
	t.Helper()
	rec := f.do(t, nethttp.MethodPost, "/api/v1/sessions", `{"business_id":"biz-1","user":{"id":"m-1"}}`)
	require.Equal(t, nethttp.StatusCreated, rec.Code, rec.Body.String())
	var resp httpin.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func mustOrder(t *testing.T, id, status string, option order.DeliveryOption, lat, lng float64) *order.Order {
	t.Helper()
	o, err := order.NewOrder(order.Params{
		ID:             id,
		Code:           "ORD-" + id,
		BusinessID:     "biz-1",
		Status:         status,
		Fulfillment:    order.Delivery,
		DeliveryOption: option,
		Drop:           kernel.MustCoordinates(lat, lng),
	})
	require.NoError(t, err)
	return o
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_Health(t *testing.T) {
	t.Run("backend reachable", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, nethttp.MethodGet, "/health", "")
		assert.Equal(t, nethttp.StatusNoContent, rec.Code)
	})

	t.Run("backend unreachable", func(t *testing.T) {
		f := newFixture(t)
		f.probe = errors.New("dial tcp: refused")
		rec := f.do(t, nethttp.MethodGet, "/health", "")
		assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, nethttp.StatusServiceUnavailable, decode[httpin.Error](t, rec).Code)
	})
}

func TestServer_Sessions(t *testing.T) {
	t.Run("open lists hydrated orders", func(t *testing.T) {
		f := newFixture(t, mustOrder(t, "1", "confirmed", order.Self, 27.4775, 89.6387))
		id := f.open(t)

		rec := f.do(t, nethttp.MethodGet, "/api/v1/sessions/"+id+"/orders", "")

		require.Equal(t, nethttp.StatusOK, rec.Code)
		orders := decode[[]httpin.OrderResponse](t, rec)
		require.Len(t, orders, 1)
		assert.Equal(t, "1", orders[0].ID)
		assert.Equal(t, string(order.Confirmed), orders[0].Status)
		assert.Equal(t, string(order.Ready), orders[0].NextStatus)
	})

	t.Run("missing business id", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, nethttp.MethodPost, "/api/v1/sessions", `{"user":{}}`)
		assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, nethttp.MethodGet, "/api/v1/sessions/nope/orders", "")
		assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	})

	t.Run("closed session is gone", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t)

		assert.Equal(t, nethttp.StatusNoContent, f.do(t, nethttp.MethodDelete, "/api/v1/sessions/"+id, "").Code)
		assert.Equal(t, nethttp.StatusNotFound, f.do(t, nethttp.MethodGet, "/api/v1/sessions/"+id+"/orders", "").Code)
	})
}

func TestServer_OrderActions(t *testing.T) {
	t.Run("advance sends the next status", func(t *testing.T) {
		f := newFixture(t, mustOrder(t, "1", "confirmed", order.Self, 27.4775, 89.6387))
		f.orders.On("UpdateStatus", mock.Anything, "ORD-1", mock.MatchedBy(func(c ports.StatusChange) bool {
			return c.Status == order.Ready
		})).Return(nil).Once()
		id := f.open(t)

		rec := f.do(t, nethttp.MethodPost, "/api/v1/sessions/"+id+"/orders/1/advance", `{"reason":"packed"}`)

		require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, string(order.Ready), decode[httpin.OrderResponse](t, rec).Status)
		f.orders.AssertExpectations(t)
	})

	t.Run("ready grab order waits for a driver", func(t *testing.T) {
		f := newFixture(t, mustOrder(t, "1", "ready", order.Grab, 27.4775, 89.6387))
		id := f.open(t)

		rec := f.do(t, nethttp.MethodPost, "/api/v1/sessions/"+id+"/orders/1/advance", "")

		assert.Equal(t, nethttp.StatusConflict, rec.Code)
		f.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("decline reason too short", func(t *testing.T) {
		f := newFixture(t, mustOrder(t, "1", "pending", order.Self, 27.4775, 89.6387))
		id := f.open(t)

		rec := f.do(t, nethttp.MethodPost, "/api/v1/sessions/"+id+"/orders/1/decline", `{"reason":"no"}`)

		assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t)

		rec := f.do(t, nethttp.MethodPost, "/api/v1/sessions/"+id+"/orders/42/confirm", `{"estimated_minutes":20}`)

		assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newFixture(t, mustOrder(t, "1", "pending", order.Self, 27.4775, 89.6387))
		id := f.open(t)

		rec := f.do(t, nethttp.MethodPost, "/api/v1/sessions/"+id+"/orders/1/confirm", `{"estimated_minutes":`)

		assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	})
}

func TestServer_Batches(t *testing.T) {
	t.Run("plan freezes nearby orders into one batch", func(t *testing.T) {
		f := newFixture(t,
			mustOrder(t, "1", "confirmed", order.Grab, 27.4775, 89.6387),
			mustOrder(t, "2", "ready", order.Grab, 27.4776, 89.6388),
		)
		id := f.open(t)

		rec := f.do(t, nethttp.MethodPost, "/api/v1/sessions/"+id+"/batches/plan", "")

		require.Equal(t, nethttp.StatusCreated, rec.Code, rec.Body.String())
		plan := decode[httpin.PlanResponse](t, rec)
		require.Len(t, plan.Created, 1)
		assert.ElementsMatch(t, []string{"1", "2"}, plan.Created[0].OrderIDs)
		assert.False(t, plan.Created[0].Broadcast)

		listed := decode[[]httpin.BatchResponse](t, f.do(t, nethttp.MethodGet, "/api/v1/sessions/"+id+"/batches", ""))
		require.Len(t, listed, 1)
		assert.Equal(t, plan.Created[0].Key, listed[0].Key)
	})

	t.Run("resend without a broadcast", func(t *testing.T) {
		f := newFixture(t, mustOrder(t, "1", "confirmed", order.Grab, 27.4775, 89.6387))
		id := f.open(t)
		plan := decode[httpin.PlanResponse](t, f.do(t, nethttp.MethodPost, "/api/v1/sessions/"+id+"/batches/plan", ""))
		require.Len(t, plan.Created, 1)

		rec := f.do(t, nethttp.MethodPost, "/api/v1/sessions/"+id+"/batches/"+plan.Created[0].Key+"/resend", "")

		assert.Equal(t, nethttp.StatusConflict, rec.Code)
	})

	t.Run("unknown batch", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t)

		assert.Equal(t, nethttp.StatusNotFound, f.do(t, nethttp.MethodPost, "/api/v1/sessions/"+id+"/batches/nope/dispatch", "").Code)
		assert.Equal(t, nethttp.StatusNotFound, f.do(t, nethttp.MethodGet, "/api/v1/sessions/"+id+"/batches/nope/route", "").Code)
	})
}

func TestServer_Notifications(t *testing.T) {
	f := newFixture(t)
	id := f.open(t)

	t.Run("empty feed", func(t *testing.T) {
		rec := f.do(t, nethttp.MethodGet, "/api/v1/sessions/"+id+"/notifications?after=0&limit=10", "")
		require.Equal(t, nethttp.StatusOK, rec.Code)
		assert.Empty(t, decode[[]httpin.Notification](t, rec))
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := f.do(t, nethttp.MethodGet, "/api/v1/sessions/"+id+"/notifications?limit=0", "")
		assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	})
}

func TestServer_Queries(t *testing.T) {
	f := newFixture(t)

	t.Run("invalid batch key", func(t *testing.T) {
		rec := f.do(t, nethttp.MethodGet, "/api/v1/dispatches/not-a-uuid", "")
		assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	})

	t.Run("invalid en_route flag", func(t *testing.T) {
		rec := f.do(t, nethttp.MethodGet, "/api/v1/assignments?en_route=maybe", "")
		assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	})
}
