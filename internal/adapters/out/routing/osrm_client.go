// Package routing fetches road polylines from an OSRM compatible server.
package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/services"
	"merchantdispatch/internal/pkg/errs"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

// DefaultTimeout bounds one route lookup.
const DefaultTimeout = 15 * time.Second

// ErrNoRoute is returned when the server answers without a usable route.
var ErrNoRoute = errors.New("routing service returned no route")

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// OSRMClient implements ports.RoutingService.
type OSRMClient struct {
	baseURL    string
	profile    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOSRMClient creates a client for baseURL, e.g. https://router.project-osrm.org.
func NewOSRMClient(baseURL string, httpClient *http.Client) (*OSRMClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errs.NewValueIsRequiredError("routing base url")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OSRMClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    "driving",
		timeout:    DefaultTimeout,
		httpClient: httpClient,
	}, nil
}

// Route returns the first route between from and to.
func (c *OSRMClient) Route(ctx context.Context, from, to kernel.Coordinates) (services.Route, error) {
	if !from.IsSet() || !to.IsSet() {
		return services.Route{}, errs.NewValueIsRequiredError("route endpoints")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, c.profile, from.Lng(), from.Lat(), to.Lng(), to.Lat())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Route{}, fmt.Errorf("osrm request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Route{}, errs.NewNetworkError("osrm GET route", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Route{}, errs.NewNetworkError("osrm GET route", err)
	}
	if resp.StatusCode >= 400 {
		return services.Route{}, errs.NewNetworkStatusError("osrm GET route", resp.StatusCode, string(data))
	}

	var body osrmResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return services.Route{}, fmt.Errorf("osrm decode: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return services.Route{}, fmt.Errorf("%w (code %q)", ErrNoRoute, body.Code)
	}

	r := body.Routes[0]
	polyline := lo.FilterMap(r.Geometry.Coordinates, func(p []float64, _ int) (kernel.Coordinates, bool) {
		if len(p) < 2 {
			return kernel.Coordinates{}, false
		}
		pt, err := kernel.NewCoordinates(p[1], p[0])
		return pt, err == nil
	})
	return services.Route{
		Polyline:        polyline,
		DistanceKm:      r.Distance / 1000,
		DurationMinutes: r.Duration / 60,
	}, nil
}
