package merchantapi

import (
	"strings"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/domain/services"
	"merchantdispatch/internal/pkg/fieldchain"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	orderIDChain = fieldchain.New("order id",
		fieldchain.String("order_id"),
		fieldchain.String("id"),
		fieldchain.String("_id"),
	)
	orderCodeChain = fieldchain.New("order code",
		fieldchain.String("order_code"),
		fieldchain.String("orderCode"),
		fieldchain.String("code"),
	)
	customerIDChain = fieldchain.New("customer id",
		fieldchain.String("user_id"),
		fieldchain.String("customer_id"),
		fieldchain.String("user", "id"),
		fieldchain.String("user", "user_id"),
	)
	fulfillmentChain = fieldchain.New("fulfillment type",
		fieldchain.String("fulfillment_type"),
		fieldchain.String("fulfillmentType"),
		fieldchain.String("service_type"),
		fieldchain.String("order_type"),
	)
	deliveryOptionChain = fieldchain.New("delivery option",
		fieldchain.String("delivery_option"),
		fieldchain.String("deliveryOption"),
		fieldchain.String("business", "delivery_option"),
	)
	addressTextChain = fieldchain.New("address text",
		fieldchain.String("delivery_address", "address"),
		fieldchain.String("delivery_address", "address_text"),
		fieldchain.String("delivery_address", "formatted_address"),
		fieldchain.String("delivery_address"),
		fieldchain.String("address", "address"),
		fieldchain.String("address"),
	)
	driverIDChain = fieldchain.New("assigned driver",
		fieldchain.String("driver_id"),
		fieldchain.String("driverId"),
		fieldchain.String("driver", "id"),
		fieldchain.String("delivery", "driver_id"),
	)
	itemNameChain = fieldchain.New("item name",
		fieldchain.String("item_name"),
		fieldchain.String("name"),
		fieldchain.String("menu", "name"),
	)
	itemMenuIDChain = fieldchain.New("item menu id",
		fieldchain.String("menu_id"),
		fieldchain.String("menuId"),
		fieldchain.String("menu", "id"),
		fieldchain.String("id"),
	)
)

// decimalAt reads the first path holding a number or numeric string.
func decimalAt(m map[string]any, paths ...[]string) decimal.Decimal {
	for _, p := range paths {
		v, ok := fieldchain.Lookup(m, p...)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
				return d
			}
		default:
			if f, ok := fieldchain.AsFloat(t); ok {
				return decimal.NewFromFloat(f)
			}
		}
	}
	return decimal.Zero
}

func stringAt(m map[string]any, path ...string) string {
	s, _ := fieldchain.String(path...)(m)
	return s
}

func path(p ...string) []string { return p }

// orderFromMap maps one orders-grouped entry. user is the enclosing group's user
// object and fills the customer id when the order omits it.
func orderFromMap(m, user map[string]any, businessID string) (*order.Order, error) {
	userID, ok := customerIDChain.Extract(m)
	if !ok {
		userID, _ = fieldchain.String("id")(user)
	}
	if b := stringAt(m, "business_id"); b != "" {
		businessID = b
	}
	drop, _ := services.DropCoordinateChain.Extract(m)
	code, _ := orderCodeChain.Extract(m)
	id, _ := orderIDChain.Extract(m)
	fulfillment, _ := fulfillmentChain.Extract(m)
	option, _ := deliveryOptionChain.Extract(m)
	address, _ := addressTextChain.Extract(m)
	driverID, _ := driverIDChain.Extract(m)

	rawItems, _ := m["items"].([]any)
	items := lo.FilterMap(rawItems, func(v any, _ int) (order.Item, bool) {
		im, ok := v.(map[string]any)
		if !ok {
			return order.Item{}, false
		}
		return itemFromMap(im, businessID), true
	})

	return order.NewOrder(order.Params{
		ID:             id,
		Code:           code,
		BusinessID:     businessID,
		UserID:         userID,
		Status:         stringAt(m, "status"),
		Fulfillment:    order.ParseFulfillmentType(fulfillment),
		DeliveryOption: order.ParseDeliveryOption(option),
		ChosenOption:   order.ParseDeliveryOption(stringAt(m, "chosen_delivery_option")),
		AddressText:    address,
		Drop:           drop,
		Items:          items,
		Totals: order.Totals{
			Subtotal:            decimalAt(m, path("subtotal"), path("sub_total")),
			PlatformFee:         decimalAt(m, path("platform_fee"), path("totals", "platform_fee")),
			Discount:            decimalAt(m, path("discount_amount"), path("discount"), path("totals", "discount")),
			DeliveryFee:         decimalAt(m, path("delivery_fee"), path("totals", "delivery_fee")),
			MerchantDeliveryFee: decimalAt(m, path("merchant_delivery_fee"), path("totals", "merchant_delivery_fee")),
			Total:               decimalAt(m, path("total_amount"), path("total"), path("totals", "total")),
		},
		PaymentMethod:   stringAt(m, "payment_method"),
		UnavailableMode: order.ParseUnavailableMode(stringAt(m, "if_unavailable")),
		StatusReason:    stringAt(m, "status_reason"),
		DriverID:        driverID,
	})
}

func itemFromMap(m map[string]any, businessID string) order.Item {
	menuID, _ := itemMenuIDChain.Extract(m)
	name, _ := itemNameChain.Extract(m)
	if b := stringAt(m, "business_id"); b != "" {
		businessID = b
	}
	qty := 1
	if f, ok := fieldchain.Float("quantity")(m); ok {
		qty = int(f)
	} else if f, ok := fieldchain.Float("qty")(m); ok {
		qty = int(f)
	}
	available := true
	for _, key := range []string{"available", "is_available"} {
		if v, ok := fieldchain.Lookup(m, key); ok {
			if b, ok := fieldchain.AsBool(v); ok {
				available = b
				break
			}
		}
	}

	return order.Item{
		BusinessID:   businessID,
		BusinessName: stringAt(m, "business_name"),
		MenuID:       menuID,
		Name:         name,
		Image:        stringAt(m, "item_image"),
		Quantity:     qty,
		UnitPrice:    decimalAt(m, path("price"), path("unit_price"), path("menu", "price")),
		Available:    available,
	}
}
