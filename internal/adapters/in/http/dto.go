package http

import (
	"time"

	"merchantdispatch/internal/core/application/coordinator"
	"merchantdispatch/internal/core/application/usecases/queries"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func locationOf(c kernel.Coordinates) *Location {
	if !c.IsSet() {
		return nil
	}
	return &Location{Lat: c.Lat(), Lng: c.Lng()}
}

type OpenSessionRequest struct {
	BusinessID string         `json:"business_id"`
	User       map[string]any `json:"user"`
}

type SessionResponse struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"business_id"`
	BusinessName string    `json:"business_name"`
	OpenedAt     time.Time `json:"opened_at"`
	Orders       int       `json:"orders"`
	Polling      bool      `json:"polling"`
}

type Item struct {
	MenuID    string          `json:"menu_id"`
	Name      string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

type Totals struct {
	Subtotal            decimal.Decimal `json:"subtotal"`
	PlatformFee         decimal.Decimal `json:"platform_fee"`
	Discount            decimal.Decimal `json:"discount"`
	DeliveryFee         decimal.Decimal `json:"delivery_fee"`
	MerchantDeliveryFee decimal.Decimal `json:"merchant_delivery_fee"`
	Total               decimal.Decimal `json:"total"`
}

func totalsOf(t order.Totals) Totals {
	return Totals{
		Subtotal:            t.Subtotal,
		PlatformFee:         t.PlatformFee,
		Discount:            t.Discount,
		DeliveryFee:         t.DeliveryFee,
		MerchantDeliveryFee: t.MerchantDeliveryFee,
		Total:               t.Total,
	}
}

type OrderResponse struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Status           string    `json:"status"`
	StatusReason     string    `json:"status_reason,omitempty"`
	NextStatus       string    `json:"next_status,omitempty"`
	AwaitingDriver   bool      `json:"awaiting_driver"`
	Fulfillment      string    `json:"fulfillment_type"`
	DeliveryOption   string    `json:"delivery_option"`
	ChosenOption     string    `json:"chosen_delivery_option,omitempty"`
	Address          string    `json:"address,omitempty"`
	Drop             *Location `json:"drop,omitempty"`
	Items            []Item    `json:"items"`
	Totals           Totals    `json:"totals"`
	PaymentMethod    string    `json:"payment_method,omitempty"`
	EstimatedMinutes int       `json:"estimated_minutes,omitempty"`
	DriverID         string    `json:"driver_id,omitempty"`
}

func orderOf(o *order.Order) OrderResponse {
	next, _ := order.NextTransition(o)
	chosen := ""
	if o.DeliveryOption() == order.Both && o.ChosenOption() != order.UnknownDeliveryOption {
		chosen = string(o.ChosenOption())
	}
	return OrderResponse{
		ID:             o.Key(),
		Code:           o.Code(),
		Status:         string(o.Status()),
		StatusReason:   o.StatusReason(),
		NextStatus:     string(next),
		AwaitingDriver: order.IsGated(o),
		Fulfillment:    string(o.Fulfillment()),
		DeliveryOption: string(o.DeliveryOption()),
		ChosenOption:   chosen,
		Address:        o.AddressText(),
		Drop:           locationOf(o.Drop()),
		Items: lo.Map(o.Items(), func(it order.Item, _ int) Item {
			return Item{MenuID: it.MenuID, Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Available: it.Available}
		}),
		Totals:           totalsOf(o.Totals()),
		PaymentMethod:    o.PaymentMethod(),
		EstimatedMinutes: o.EstimatedMinutes(),
		DriverID:         o.DriverID(),
	}
}

type Driver struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	VehiclePlate string    `json:"vehicle_plate,omitempty"`
	Rating       float64   `json:"rating,omitempty"`
	Arrived      bool      `json:"arrived"`
	Location     *Location `json:"location,omitempty"`
}

type BatchResponse struct {
	Key            string    `json:"key"`
	BatchID        string    `json:"batch_id,omitempty"`
	RideID         string    `json:"ride_id,omitempty"`
	OrderIDs       []string  `json:"order_ids"`
	Center         *Location `json:"center,omitempty"`
	Phase          string    `json:"phase"`
	Broadcast      bool      `json:"broadcast"`
	RetryCount     int       `json:"retry_count"`
	AwaitingResend bool      `json:"awaiting_resend"`
	Driver         *Driver   `json:"driver,omitempty"`
	ETAMinutes     *float64  `json:"eta_minutes,omitempty"`
}

func batchOf(v coordinator.BatchView) BatchResponse {
	r := BatchResponse{
		Key:            v.Key,
		BatchID:        v.BatchID,
		RideID:         v.RideID,
		OrderIDs:       v.OrderIDs,
		Center:         locationOf(v.Center),
		Phase:          string(v.Phase),
		Broadcast:      v.Broadcast,
		RetryCount:     v.RetryCount,
		AwaitingResend: v.AwaitingResend,
	}
	if v.DriverID != "" {
		r.Driver = &Driver{
			ID:           v.DriverID,
			Name:         v.DriverProfile.Name,
			Phone:        v.DriverProfile.Phone,
			VehiclePlate: v.DriverProfile.VehiclePlate,
			Rating:       v.DriverProfile.Rating,
			Arrived:      v.DriverArrived,
			Location:     locationOf(v.DriverLocation),
		}
	}
	if v.HasETA {
		eta := v.ETAMinutes
		r.ETAMinutes = &eta
	}
	return r
}

type PlanResponse struct {
	Created     []BatchResponse `json:"created"`
	Unclustered []string        `json:"unclustered"`
}

type RouteResponse struct {
	Polyline        []Location `json:"polyline"`
	DistanceKm      float64    `json:"distance_km"`
	DurationMinutes float64    `json:"duration_minutes"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type ReplacementRequest struct {
	BusinessID   string          `json:"business_id"`
	BusinessName string          `json:"business_name"`
	MenuID       string          `json:"menu_id"`
	Name         string          `json:"item_name"`
	Image        string          `json:"item_image"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

type UnavailableRequest struct {
	MenuID      string              `json:"menu_id"`
	Replacement *ReplacementRequest `json:"replacement"`
}

type ConfirmRequest struct {
	EstimatedMinutes int                  `json:"estimated_minutes"`
	Reason           string               `json:"reason"`
	Unavailable      []UnavailableRequest `json:"unavailable"`
}

type ConfirmResponse struct {
	Order   OrderResponse    `json:"order"`
	Changes order.Changelist `json:"unavailable_changes"`
}

type DeclineRequest struct {
	Reason     string `json:"reason"`
	DeclinedBy string `json:"declined_by"`
}

type DeliveryRequest struct {
	Option string `json:"delivery_option"`
}

type Notification struct {
	Seq      uint64    `json:"seq"`
	Kind     string    `json:"kind"`
	OrderID  string    `json:"order_id,omitempty"`
	BatchKey string    `json:"batch_key,omitempty"`
	Status   string    `json:"status,omitempty"`
	DriverID string    `json:"driver_id,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

func notificationOf(e ports.FeedEntry) Notification {
	return Notification{
		Seq:      e.Seq,
		Kind:     string(e.Kind),
		OrderID:  e.OrderID,
		BatchKey: e.BatchKey,
		Status:   string(e.Status),
		DriverID: e.DriverID,
		Message:  e.Message,
		At:       e.At,
	}
}

type AssignedDriver struct {
	BatchKey     string     `json:"batch_key"`
	DriverID     string     `json:"driver_id"`
	Name         string     `json:"name,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	VehiclePlate string     `json:"vehicle_plate,omitempty"`
	Rating       float64    `json:"rating"`
	AcceptedAt   time.Time  `json:"accepted_at"`
	ArrivedAt    *time.Time `json:"arrived_at,omitempty"`
	Live         *Location  `json:"live,omitempty"`
}

func assignedDriverOf(d queries.AssignedDriver) AssignedDriver {
	return AssignedDriver{
		BatchKey:     d.BatchKey.String(),
		DriverID:     d.DriverID,
		Name:         d.Name,
		Phone:        d.Phone,
		VehiclePlate: d.VehiclePlate,
		Rating:       d.Rating,
		AcceptedAt:   d.AcceptedAt,
		ArrivedAt:    d.ArrivedAt,
		Live:         locationOf(d.Live),
	}
}

type DispatchAttempt struct {
	RequestID    string          `json:"request_id"`
	BatchID      string          `json:"batch_id,omitempty"`
	RetryCount   int             `json:"retry_count"`
	SentAt       time.Time       `json:"sent_at"`
	Acknowledged bool            `json:"acknowledged"`
	Superseded   bool            `json:"superseded"`
	Failure      string          `json:"failure,omitempty"`
	DropCount    int             `json:"drop_count"`
	Fare         decimal.Decimal `json:"fare"`
	Currency     string          `json:"currency"`
}

type DispatchHistoryResponse struct {
	BatchKey string            `json:"batch_key"`
	Attempts []DispatchAttempt `json:"attempts"`
	Driver   *AssignedDriver   `json:"driver,omitempty"`
}

func historyOf(h queries.GetDispatchHistoryQueryResponse) DispatchHistoryResponse {
	r := DispatchHistoryResponse{
		BatchKey: h.BatchKey.String(),
		Attempts: lo.Map(h.Attempts, func(a queries.DispatchAttempt, _ int) DispatchAttempt {
			return DispatchAttempt{
				RequestID:    a.RequestID.String(),
				BatchID:      a.BatchID,
				RetryCount:   a.RetryCount,
				SentAt:       a.SentAt,
				Acknowledged: a.Acknowledged,
				Superseded:   a.Superseded,
				Failure:      a.Failure,
				DropCount:    a.DropCount,
				Fare:         a.Fare,
				Currency:     a.Currency,
			}
		}),
	}
	if h.Driver != nil {
		d := assignedDriverOf(*h.Driver)
		r.Driver = &d
	}
	return r
}
