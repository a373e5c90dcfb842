package location

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/id"
	"github.com/xraph/allot/types"
)

// Registry answers location lookups for fulfillment. It never mutates the
// store.
type Registry struct {
	store  Store
	clock  types.Clock
	logger *slog.Logger
}

// NewRegistry returns a Registry reading from store.
func NewRegistry(store Store, clock types.Clock, logger *slog.Logger) *Registry {
	if clock == nil {
		clock = types.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, clock: clock, logger: logger}
}

// CandidateLocations returns the active locations able to serve orderType.
// When storeID is set and the store has effective links, the result is
// narrowed to the linked locations; a store with no effective links falls
// back to every active location. An empty result is not an error.
//
// variantID is accepted so stock-aware registries can narrow further; the
// default registry leaves stock filtering to the ledger.
func (r *Registry) CandidateLocations(ctx context.Context, variantID string, orderType demand.OrderType, storeID string) ([]*Location, error) {
	all, err := r.store.ListLocations(ctx, ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("location: list candidates: %w", err)
	}

	var linked map[string]bool
	if storeID != "" {
		links, linkErr := r.effectiveLinks(ctx, storeID)
		if linkErr != nil {
			return nil, linkErr
		}
		if len(links) > 0 {
			linked = make(map[string]bool, len(links))
			for _, link := range links {
				linked[link.LocationID.String()] = true
			}
		}
	}

	out := make([]*Location, 0, len(all))
	for _, l := range all {
		if !l.Active || !l.Serves(orderType) {
			continue
		}
		if linked != nil && !linked[l.ID.String()] {
			continue
		}
		out = append(out, l)
	}
	SortByPriority(out)

	r.logger.Debug("candidate locations resolved",
		"variant_id", variantID,
		"order_type", string(orderType),
		"store_id", storeID,
		"candidates", len(out),
	)
	return out, nil
}

// PrimaryLocation returns the store's effectively active primary location.
// The second return value is false when the store has none. Should more than
// one primary link be effective at once, the lowest link priority wins, then
// the lowest location id.
func (r *Registry) PrimaryLocation(ctx context.Context, storeID string) (id.LocationID, bool, error) {
	if storeID == "" {
		return id.Nil, false, nil
	}
	links, err := r.effectiveLinks(ctx, storeID)
	if err != nil {
		return id.Nil, false, err
	}

	var primaries []*StoreLink
	for _, link := range links {
		if link.IsPrimary {
			primaries = append(primaries, link)
		}
	}
	if len(primaries) == 0 {
		return id.Nil, false, nil
	}
	if len(primaries) > 1 {
		r.logger.Warn("store has more than one effective primary location",
			"store_id", storeID,
			"count", len(primaries),
		)
	}
	slices.SortFunc(primaries, func(a, b *StoreLink) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return a.LocationID.Compare(b.LocationID)
	})
	return primaries[0].LocationID, true, nil
}

// Get returns a single location.
func (r *Registry) Get(ctx context.Context, locationID id.LocationID) (*Location, error) {
	return r.store.GetLocation(ctx, locationID)
}

func (r *Registry) effectiveLinks(ctx context.Context, storeID string) ([]*StoreLink, error) {
	links, err := r.store.ListStoreLinks(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("location: list links for store %s: %w", storeID, err)
	}
	now := r.clock.Now()
	out := links[:0:0]
	for _, link := range links {
		if link.EffectiveAt(now) {
			out = append(out, link)
		}
	}
	return out, nil
}

// SortByPriority orders locations by priority ascending, then id.
func SortByPriority(locs []*Location) {
	slices.SortStableFunc(locs, func(a, b *Location) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
}
