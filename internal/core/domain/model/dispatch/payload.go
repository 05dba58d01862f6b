package dispatch

import (
	"errors"
	"fmt"

	"merchantdispatch/internal/pkg/errs"

	"github.com/shopspring/decimal"
)

const (
	// DefaultServiceType is the serviceType sent with every broadcast.
	DefaultServiceType = "delivery"
	// DefaultCurrency is used when the business has none configured.
	DefaultCurrency = "BTN"
)

// ErrNoDropCoordinates is returned when no order in a batch has a finite drop location.
var ErrNoDropCoordinates = errs.NewValueIsInvalidErrorWithCause("drops",
	errors.New("at least one drop needs finite lat/lng"))

// Drop is one delivery stop of a broadcast.
type Drop struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id,omitempty"`
	Address       string          `json:"address"`
	Lat           float64         `json:"lat"`
	Lng           float64         `json:"lng"`
	Amount        decimal.Decimal `json:"amount"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	PaymentMethod string          `json:"payment_method"`
	CashToCollect decimal.Decimal `json:"cash_to_collect"`
}

// Payload is the body of POST dispatch-broadcast.
type Payload struct {
	PassengerID string          `json:"passenger_id"`
	MerchantID  string          `json:"merchant_id"`
	CityID      string          `json:"cityId,omitempty"`
	ServiceType string          `json:"serviceType"`
	Pickup      [2]float64      `json:"pickup"`
	Drops       []Drop          `json:"drops"`
	BatchID     string          `json:"batch_id,omitempty"`
	Fare        decimal.Decimal `json:"fare"`
	Currency    string          `json:"currency"`
}

// Validate checks the broadcast preconditions. It never touches the network.
func (p Payload) Validate() error {
	var errList []error
	if p.PassengerID == "" {
		errList = append(errList, errs.NewValueIsRequiredError("passenger_id"))
	}
	if p.MerchantID == "" {
		errList = append(errList, errs.NewValueIsRequiredError("merchant_id"))
	}
	if len(p.Drops) == 0 {
		errList = append(errList, ErrNoDropCoordinates)
	}
	for i, d := range p.Drops {
		if d.OrderID == "" {
			errList = append(errList, fmt.Errorf("drops[%d]: %w", i, errs.NewValueIsRequiredError("order_id")))
		}
	}
	return errors.Join(errList...)
}

// OrderIDs lists the drop order ids in payload order.
func (p Payload) OrderIDs() []string {
	ids := make([]string, 0, len(p.Drops))
	for _, d := range p.Drops {
		ids = append(ids, d.OrderID)
	}
	return ids
}

// Clone returns a copy that does not share the drops slice.
func (p Payload) Clone() Payload {
	c := p
	c.Drops = append([]Drop(nil), p.Drops...)
	return c
}
