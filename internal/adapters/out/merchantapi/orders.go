package merchantapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
)

// UpdateStatus sends PUT orders/{order_code}/status.
func (c *Client) UpdateStatus(ctx context.Context, orderCode string, change ports.StatusChange) error {
	p := fmt.Sprintf("orders/%s/status", url.PathEscape(orderCode))
	_, err := c.do(ctx, http.MethodPut, p, statusBody(change))
	return err
}

// ListGrouped sends GET orders-grouped/{business_id}. Orders that cannot be mapped
// are skipped and logged.
func (c *Client) ListGrouped(ctx context.Context, businessID string) ([]ports.OrderGroup, error) {
	p := "orders-grouped/" + url.PathEscape(businessID)
	data, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, err
	}

	raw, _ := c.decode(p, data).([]any)
	groups := make([]ports.OrderGroup, 0, len(raw))
	for _, g := range raw {
		gm, ok := g.(map[string]any)
		if !ok {
			continue
		}
		user, _ := gm["user"].(map[string]any)
		rawOrders, _ := gm["orders"].([]any)

		group := ports.OrderGroup{User: user, Orders: make([]*order.Order, 0, len(rawOrders))}
		for _, ro := range rawOrders {
			om, ok := ro.(map[string]any)
			if !ok {
				continue
			}
			o, err := orderFromMap(om, user, businessID)
			if err != nil {
				c.logger.WarnContext(ctx, "Skipping unmappable order", "business_id", businessID, "error", err)
				continue
			}
			group.Orders = append(group.Orders, o)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// Poll flattens ListGrouped for the reconciliation engine.
func (c *Client) Poll(businessID string) func(ctx context.Context) ([]*order.Order, error) {
	return func(ctx context.Context) ([]*order.Order, error) {
		groups, err := c.ListGrouped(ctx, businessID)
		if err != nil {
			return nil, err
		}
		var out []*order.Order
		for _, g := range groups {
			out = append(out, g.Orders...)
		}
		return out, nil
	}
}

func statusBody(change ports.StatusChange) map[string]any {
	body := map[string]any{
		"status":        string(change.Status),
		"status_reason": change.StatusReason,
		"reason":        change.Reason,
	}
	if change.DeliveryOption != "" && change.DeliveryOption != order.UnknownDeliveryOption {
		body["delivery_option"] = string(change.DeliveryOption)
	}
	if cr := change.Confirmation; cr != nil {
		body["estimated_minutes"] = cr.EstimatedMinutes
		body["final_total_amount"] = cr.Totals.Total
		body["final_platform_fee"] = cr.Totals.PlatformFee
		body["final_discount_amount"] = cr.Totals.Discount
		body["final_delivery_fee"] = cr.Totals.DeliveryFee
		body["final_merchant_delivery_fee"] = cr.Totals.MerchantDeliveryFee
		body["unavailable_changes"] = cr.Changes
	}
	return body
}
