package location

import (
	"context"
	"errors"

	"github.com/xraph/allot/id"
)

var (
	ErrLocationNotFound = errors.New("location: not found")
	ErrLocationExists   = errors.New("location: already exists")
	ErrLinkNotFound     = errors.New("location: store link not found")
)

// Store persists locations and store links. Results of ListLocations are
// ordered by priority, then id.
type Store interface {
	CreateLocation(ctx context.Context, l *Location) error
	GetLocation(ctx context.Context, locationID id.LocationID) (*Location, error)
	UpdateLocation(ctx context.Context, l *Location) error
	ListLocations(ctx context.Context, opts ListOpts) ([]*Location, error)

	PutStoreLink(ctx context.Context, link *StoreLink) error
	ListStoreLinks(ctx context.Context, storeID string) ([]*StoreLink, error)
	DeleteStoreLink(ctx context.Context, storeID string, locationID id.LocationID) error
}
