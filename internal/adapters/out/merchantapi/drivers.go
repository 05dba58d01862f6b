package merchantapi

import (
	"context"
	"net/http"
	"net/url"

	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/fieldchain"
)

var (
	driverNameChain = fieldchain.New("driver name",
		fieldchain.String("name"),
		fieldchain.String("full_name"),
		fieldchain.String("user", "name"),
	)
	driverPhoneChain = fieldchain.New("driver phone",
		fieldchain.String("phone"),
		fieldchain.String("phone_number"),
		fieldchain.String("mobile"),
		fieldchain.String("user", "phone"),
	)
	vehiclePlateChain = fieldchain.New("vehicle plate",
		fieldchain.String("vehicle_number"),
		fieldchain.String("plate_number"),
		fieldchain.String("vehicle", "plate"),
		fieldchain.String("vehicle", "number"),
	)
	ratingChain = fieldchain.New("rating",
		fieldchain.Float("rating"),
		fieldchain.Float("average_rating"),
		fieldchain.Float("avg_rating"),
	)
)

// Driver sends GET driver-details/{driver_id}.
func (c *Client) Driver(ctx context.Context, driverID string) (ports.DriverDetails, error) {
	p := "driver-details/" + url.PathEscape(driverID)
	data, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return ports.DriverDetails{}, err
	}
	m := c.decodeObject(p, data)
	if m == nil {
		return ports.DriverDetails{}, errs.NewObjectNotFoundError("driver", driverID)
	}
	if inner, ok := m["driver"].(map[string]any); ok {
		m = inner
	}

	name, _ := driverNameChain.Extract(m)
	phone, _ := driverPhoneChain.Extract(m)
	plate, _ := vehiclePlateChain.Extract(m)
	return ports.DriverDetails{ID: driverID, Name: name, Phone: phone, VehiclePlate: plate}, nil
}

// Rating sends GET driver-rating?driver_id=. A body without a rating yields 0.
func (c *Client) Rating(ctx context.Context, driverID string) (float64, error) {
	p := "driver-rating?driver_id=" + url.QueryEscape(driverID)
	data, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return 0, err
	}
	v := c.decode(p, data)
	if f, ok := fieldchain.AsFloat(v); ok {
		return f, nil
	}
	m, _ := v.(map[string]any)
	rating, _ := ratingChain.Extract(m)
	return rating, nil
}
