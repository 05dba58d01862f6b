package merchantapi

import (
	"context"
	"net/http"
	"net/url"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/domain/services"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/errs"
)

// Details sends GET business-details/{business_id}.
func (c *Client) Details(ctx context.Context, businessID string) (ports.BusinessDetails, error) {
	p := "business-details/" + url.PathEscape(businessID)
	data, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return ports.BusinessDetails{}, err
	}
	m := c.decodeObject(p, data)
	if m == nil {
		return ports.BusinessDetails{}, errs.NewObjectNotFoundError("business", businessID)
	}
	if inner, ok := m["business"].(map[string]any); ok {
		m = inner
	}

	loc, _ := services.BusinessLocationChain.Extract(m)
	id := stringAt(m, "business_id")
	if id == "" {
		id = businessID
	}
	city := stringAt(m, "city_id")
	if city == "" {
		city = stringAt(m, "cityId")
	}
	name := stringAt(m, "business_name")
	if name == "" {
		name = stringAt(m, "name")
	}
	return ports.BusinessDetails{
		ID:             id,
		Name:           name,
		CityID:         city,
		Currency:       stringAt(m, "currency"),
		DeliveryOption: order.ParseDeliveryOption(stringAt(m, "delivery_option")),
		Location:       loc,
	}, nil
}
