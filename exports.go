package allot

import (
	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/types"
)

// Re-export common types for convenience so callers rarely need the
// sub-packages.

// Entity is re-exported from types package.
type Entity = types.Entity

// Coordinates is re-exported from types package.
type Coordinates = types.Coordinates

// FulfillmentContext is re-exported from demand package.
type FulfillmentContext = demand.Context

// Item is re-exported from demand package.
type Item = demand.Item

// OrderType is re-exported from demand package.
type OrderType = demand.OrderType

// Order types.
const (
	OrderOnline          = demand.OrderOnline
	OrderInstorePickup   = demand.OrderInstorePickup
	OrderInstorePurchase = demand.OrderInstorePurchase
	OrderDropship        = demand.OrderDropship
)

// Location is re-exported from location package.
type Location = location.Location

// StoreLink is re-exported from location package.
type StoreLink = location.StoreLink

// Allocation is re-exported from allocation package.
type Allocation = allocation.Allocation

// Strategy names.
const (
	StrategyRanked        = allocation.NameRanked
	StrategyNearest       = allocation.NameNearest
	StrategyHighestStock  = allocation.NameHighestStock
	StrategyCostOptimized = allocation.NameCostOptimized
)

// Re-export constructors
var (
	NewEntity  = types.NewEntity
	DistanceKm = types.DistanceKm
)
