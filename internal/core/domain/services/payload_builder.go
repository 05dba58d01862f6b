package services

import (
	"errors"
	"strings"

	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/pkg/errs"

	"github.com/shopspring/decimal"
)

// PayloadInput is everything needed to build a dispatch broadcast for one batch.
type PayloadInput struct {
	MerchantID  string
	CityID      string
	PassengerID string
	Pickup      kernel.Coordinates
	BatchID     string
	Currency    string
	// Fare overrides the sum of delivery fees when positive.
	Fare   decimal.Decimal
	Orders []*order.Order
}

// PayloadBuilder builds dispatch-broadcast payloads.
type PayloadBuilder struct{}

// NewPayloadBuilder creates a PayloadBuilder.
func NewPayloadBuilder() PayloadBuilder {
	return PayloadBuilder{}
}

// Build returns the payload for in. It fails with a validation error before any
// network call when no order has a drop coordinate, the pickup is unknown or the
// passenger id is missing. Orders without coordinates are left out of drops.
func (PayloadBuilder) Build(in PayloadInput) (dispatch.Payload, error) {
	drops := make([]dispatch.Drop, 0, len(in.Orders))
	fare := decimal.Zero
	for _, o := range in.Orders {
		if o == nil || !o.Drop().IsSet() {
			continue
		}
		drops = append(drops, dropOf(o))
		fare = fare.Add(o.Totals().DeliveryFee)
	}

	var errList []error
	if len(drops) == 0 {
		errList = append(errList, dispatch.ErrNoDropCoordinates)
	}
	if !in.Pickup.IsSet() {
		errList = append(errList, errs.NewValueIsRequiredError("pickup"))
	}
	if strings.TrimSpace(in.PassengerID) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("passenger_id"))
	}
	if strings.TrimSpace(in.MerchantID) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("merchant_id"))
	}
	if err := errors.Join(errList...); err != nil {
		return dispatch.Payload{}, err
	}

	if in.Fare.IsPositive() {
		fare = in.Fare
	}
	currency := in.Currency
	if currency == "" {
		currency = dispatch.DefaultCurrency
	}

	return dispatch.Payload{
		PassengerID: in.PassengerID,
		MerchantID:  in.MerchantID,
		CityID:      in.CityID,
		ServiceType: dispatch.DefaultServiceType,
		Pickup:      in.Pickup.Pair(),
		Drops:       drops,
		BatchID:     in.BatchID,
		Fare:        fare,
		Currency:    currency,
	}, nil
}

func dropOf(o *order.Order) dispatch.Drop {
	totals := o.Totals()
	cash := decimal.Zero
	if o.IsCashOnDelivery() {
		cash = totals.Total
	}
	return dispatch.Drop{
		OrderID:       o.Key(),
		UserID:        o.UserID(),
		Address:       o.AddressText(),
		Lat:           o.Drop().Lat(),
		Lng:           o.Drop().Lng(),
		Amount:        totals.Total,
		DeliveryFee:   totals.DeliveryFee,
		PlatformFee:   totals.PlatformFee,
		PaymentMethod: o.PaymentMethod(),
		CashToCollect: cash,
	}
}
