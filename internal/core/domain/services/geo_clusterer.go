package services

import (
	"fmt"
	"math"
	"slices"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/pkg/errs"
)

// DefaultClusterThresholdKm is the maximum distance from a cluster centroid for an
// order to join that cluster.
const DefaultClusterThresholdKm = 5.0

// Cluster is a group of orders close to a running centroid.
// Center is unset for the fallback cluster.
type Cluster struct {
	Center kernel.Coordinates
	Orders []*order.Order
}

// OrderIDs returns the member keys in insertion order.
func (c Cluster) OrderIDs() []string {
	ids := make([]string, 0, len(c.Orders))
	for _, o := range c.Orders {
		ids = append(ids, o.Key())
	}
	return ids
}

// ClusterResult is the output of GeoClusterer.Cluster.
type ClusterResult struct {
	// Clusters are sorted by descending member count; ties keep creation order.
	Clusters []Cluster
	// Unclustered holds orders without a resolvable drop coordinate.
	Unclustered []*order.Order
}

// GeoClusterer groups orders into delivery batches by proximity.
//
// The algorithm is a single greedy pass: each order joins the nearest existing
// cluster when the haversine distance to its centroid is within the threshold,
// otherwise it seeds a new cluster. The centroid is the incremental mean of its
// members. The result depends on input order and is not globally optimal; the
// pass is O(n*k) for n orders and k clusters.
//
// Example usage:
//
//	clusterer := services.NewGeoClusterer()
//	res := clusterer.Cluster(orders)
//	for _, c := range res.Clusters {
//	    // one batch per cluster
//	}
type GeoClusterer struct {
	thresholdKm float64
}

// NewGeoClusterer returns a clusterer with DefaultClusterThresholdKm.
func NewGeoClusterer() GeoClusterer {
	return GeoClusterer{thresholdKm: DefaultClusterThresholdKm}
}

// NewGeoClustererWithThreshold returns a clusterer with a custom threshold in km.
func NewGeoClustererWithThreshold(thresholdKm float64) (GeoClusterer, error) {
	if math.IsNaN(thresholdKm) || math.IsInf(thresholdKm, 0) || thresholdKm <= 0 {
		return GeoClusterer{}, errs.NewValueIsInvalidErrorWithCause("cluster threshold",
			fmt.Errorf("%v is not a positive distance", thresholdKm))
	}
	return GeoClusterer{thresholdKm: thresholdKm}, nil
}

// ThresholdKm returns the configured threshold.
func (g GeoClusterer) ThresholdKm() float64 {
	return g.thresholdKm
}

// Cluster partitions the coordinate-bearing orders into clusters.
// When no order has coordinates, a single fallback cluster with an unset center
// holds every order. Nil orders are skipped.
func (g GeoClusterer) Cluster(orders []*order.Order) ClusterResult {
	var (
		clusters    []Cluster
		unclustered []*order.Order
		all         []*order.Order
	)

	for _, o := range orders {
		if o == nil {
			continue
		}
		all = append(all, o)

		point := o.Drop()
		if !point.IsSet() {
			unclustered = append(unclustered, o)
			continue
		}

		nearest, nearestKm := -1, math.MaxFloat64
		for i := range clusters {
			d, err := clusters[i].Center.DistanceKm(point)
			if err != nil {
				continue
			}
			if d < nearestKm {
				nearest, nearestKm = i, d
			}
		}

		if nearest >= 0 && nearestKm <= g.thresholdKm {
			c := &clusters[nearest]
			c.Orders = append(c.Orders, o)
			c.Center = kernel.IncrementalMean(c.Center, point, len(c.Orders))
			continue
		}
		clusters = append(clusters, Cluster{Center: point, Orders: []*order.Order{o}})
	}

	if len(clusters) == 0 {
		if len(all) == 0 {
			return ClusterResult{}
		}
		return ClusterResult{Clusters: []Cluster{{Orders: all}}}
	}

	slices.SortStableFunc(clusters, func(a, b Cluster) int {
		return len(b.Orders) - len(a.Orders)
	})
	return ClusterResult{Clusters: clusters, Unclustered: unclustered}
}
