// Package store defines the unified persistence interface for Allot.
package store

import (
	"context"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/transfer"
)

// Store is the unified storage interface for all Allot entities.
// Methods are declared explicitly rather than by embedding the domain
// store interfaces; every backend must still satisfy each of those.
type Store interface {
	// Location methods
	CreateLocation(ctx context.Context, l *location.Location) error
	GetLocation(ctx context.Context, locationID id.LocationID) (*location.Location, error)
	UpdateLocation(ctx context.Context, l *location.Location) error
	ListLocations(ctx context.Context, opts location.ListOpts) ([]*location.Location, error)
	PutStoreLink(ctx context.Context, link *location.StoreLink) error
	ListStoreLinks(ctx context.Context, storeID string) ([]*location.StoreLink, error)
	DeleteStoreLink(ctx context.Context, storeID string, locationID id.LocationID) error

	// Stock methods
	CreateStockRecord(ctx context.Context, r *stock.Record) error
	GetStockRecord(ctx context.Context, key stock.Key) (*stock.Record, error)
	ListStockRecords(ctx context.Context, opts stock.ListOpts) ([]*stock.Record, error)
	MutateStockRecord(ctx context.Context, key stock.Key, fn stock.MutateFunc) (*stock.Record, error)
	ListMovements(ctx context.Context, key stock.Key, limit int) ([]*stock.Movement, error)

	// Pickup methods
	CreatePickup(ctx context.Context, t *pickup.Ticket) error
	GetPickup(ctx context.Context, ticketID id.PickupID) (*pickup.Ticket, error)
	GetPickupByCode(ctx context.Context, code string) (*pickup.Ticket, error)
	UpdatePickup(ctx context.Context, t *pickup.Ticket) error
	ListPickups(ctx context.Context, opts pickup.ListOpts) ([]*pickup.Ticket, error)

	// Transfer methods
	CreateTransfer(ctx context.Context, o *transfer.Order) error
	GetTransfer(ctx context.Context, transferID id.TransferID) (*transfer.Order, error)
	UpdateTransfer(ctx context.Context, o *transfer.Order) error
	ListTransfers(ctx context.Context, opts transfer.ListOpts) ([]*transfer.Order, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that the unified interface covers every domain store.
var (
	_ location.Store = Store(nil)
	_ stock.Store    = Store(nil)
	_ pickup.Store   = Store(nil)
	_ transfer.Store = Store(nil)
)

// Page applies offset and limit to a slice. A zero limit means no limit.
func Page[T any](items []T, offset, limit int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
