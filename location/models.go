// Package location holds fulfillment locations and the store-to-location
// links that express which locations a store prefers.
package location

import (
	"slices"
	"time"

	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/id"
	"github.com/xraph/allot/types"
)

// Type classifies a location.
type Type string

const (
	TypeWarehouse         Type = "warehouse"
	TypeRetailStore       Type = "retail_store"
	TypeFulfillmentCenter Type = "fulfillment_center"
	TypeDropShip          Type = "drop_ship"
	TypeCrossDock         Type = "cross_dock"
)

// Valid reports whether t is a known location type.
func (t Type) Valid() bool {
	switch t {
	case TypeWarehouse, TypeRetailStore, TypeFulfillmentCenter, TypeDropShip, TypeCrossDock:
		return true
	}
	return false
}

// Capabilities are the fixed set of things a location can do.
type Capabilities struct {
	CanFulfillOnline    bool     `json:"can_fulfill_online"`
	CanFulfillInStore   bool     `json:"can_fulfill_in_store"`
	CanReceiveShipments bool     `json:"can_receive_shipments"`
	CanProcessReturns   bool     `json:"can_process_returns"`
	MaxDailyOrders      int      `json:"max_daily_orders"`
	SupportedServices   []string `json:"supported_services,omitempty"`
}

// Supports reports whether service is in SupportedServices.
func (c Capabilities) Supports(service string) bool {
	return slices.Contains(c.SupportedServices, service)
}

// Location is a place stock can be held and fulfilled from.
type Location struct {
	types.Entity
	ID           id.LocationID      `json:"id"`
	Name         string             `json:"name"`
	Type         Type               `json:"type"`
	Capabilities Capabilities       `json:"capabilities"`
	Priority     int                `json:"priority"`
	Active       bool               `json:"active"`
	Coordinates  *types.Coordinates `json:"coordinates,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
}

// Serves reports whether the location's capabilities satisfy the order type.
func (l *Location) Serves(t demand.OrderType) bool {
	switch t {
	case demand.OrderOnline:
		return l.Capabilities.CanFulfillOnline
	case demand.OrderInstorePickup, demand.OrderInstorePurchase:
		return l.Capabilities.CanFulfillInStore
	case demand.OrderDropship:
		return l.Type == TypeDropShip
	}
	return false
}

// StoreLink bridges a store to a location.
type StoreLink struct {
	StoreID        string        `json:"store_id"`
	LocationID     id.LocationID `json:"location_id"`
	IsPrimary      bool          `json:"is_primary"`
	Priority       int           `json:"priority"`
	Active         bool          `json:"active"`
	AvailableFrom  *time.Time    `json:"available_from,omitempty"`
	AvailableUntil *time.Time    `json:"available_until,omitempty"`
}

// EffectiveAt reports whether the link is active and t falls inside the
// half-open window [AvailableFrom, AvailableUntil).
func (s *StoreLink) EffectiveAt(t time.Time) bool {
	if !s.Active {
		return false
	}
	if s.AvailableFrom != nil && t.Before(*s.AvailableFrom) {
		return false
	}
	if s.AvailableUntil != nil && !t.Before(*s.AvailableUntil) {
		return false
	}
	return true
}

// ListOpts filters ListLocations.
type ListOpts struct {
	ActiveOnly bool
	Types      []Type
	Limit      int
	Offset     int
}

// Matches reports whether l passes the filter (ignoring paging).
func (o ListOpts) Matches(l *Location) bool {
	if o.ActiveOnly && !l.Active {
		return false
	}
	if len(o.Types) > 0 && !slices.Contains(o.Types, l.Type) {
		return false
	}
	return true
}
