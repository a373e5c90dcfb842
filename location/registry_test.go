package location_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/store/memory"
	"github.com/xraph/allot/types"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() types.Clock {
	return types.ClockFunc(func() time.Time { return now })
}

func addLocation(t *testing.T, s location.Store, name string, typ location.Type, priority int, caps location.Capabilities, active bool) *location.Location {
	t.Helper()
	l := &location.Location{
		ID:           id.NewLocationID(),
		Name:         name,
		Type:         typ,
		Priority:     priority,
		Capabilities: caps,
		Active:       active,
	}
	require.NoError(t, s.CreateLocation(context.Background(), l))
	return l
}

func ids(locs []*location.Location) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.Name
	}
	return out
}

func TestCandidateLocationsFiltersCapabilityAndActivity(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	online := location.Capabilities{CanFulfillOnline: true}
	instore := location.Capabilities{CanFulfillInStore: true}

	addLocation(t, s, "wh", location.TypeWarehouse, 1, online, true)
	addLocation(t, s, "shop", location.TypeRetailStore, 2, instore, true)
	addLocation(t, s, "closed", location.TypeWarehouse, 0, online, false)
	addLocation(t, s, "supplier", location.TypeDropShip, 5, online, true)

	r := location.NewRegistry(s, fixedClock(), nil)

	tests := []struct {
		orderType demand.OrderType
		want      []string
	}{
		{demand.OrderOnline, []string{"wh", "supplier"}},
		{demand.OrderInstorePickup, []string{"shop"}},
		{demand.OrderInstorePurchase, []string{"shop"}},
		{demand.OrderDropship, []string{"supplier"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.orderType), func(t *testing.T) {
			got, err := r.CandidateLocations(ctx, "sku", tt.orderType, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCandidateLocationsStoreLinks(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	caps := location.Capabilities{CanFulfillOnline: true}
	a := addLocation(t, s, "a", location.TypeWarehouse, 1, caps, true)
	addLocation(t, s, "b", location.TypeWarehouse, 2, caps, true)
	c := addLocation(t, s, "c", location.TypeWarehouse, 3, caps, true)

	expired := now.Add(-time.Hour)
	require.NoError(t, s.PutStoreLink(ctx, &location.StoreLink{StoreID: "s1", LocationID: a.ID, Active: true}))
	require.NoError(t, s.PutStoreLink(ctx, &location.StoreLink{StoreID: "s1", LocationID: c.ID, Active: true}))
	require.NoError(t, s.PutStoreLink(ctx, &location.StoreLink{StoreID: "s2", LocationID: c.ID, Active: true, AvailableUntil: &expired}))

	r := location.NewRegistry(s, fixedClock(), nil)

	got, err := r.CandidateLocations(ctx, "sku", demand.OrderOnline, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(got))

	// s2 only has an expired link, so it falls back to every active location.
	got, err = r.CandidateLocations(ctx, "sku", demand.OrderOnline, "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))

	got, err = r.CandidateLocations(ctx, "sku", demand.OrderInstorePickup, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPrimaryLocationHonorsWindow(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	caps := location.Capabilities{CanFulfillOnline: true}
	old := addLocation(t, s, "old", location.TypeRetailStore, 1, caps, true)
	cur := addLocation(t, s, "cur", location.TypeRetailStore, 1, caps, true)

	until := now
	require.NoError(t, s.PutStoreLink(ctx, &location.StoreLink{
		StoreID: "s", LocationID: old.ID, IsPrimary: true, Active: true, AvailableUntil: &until,
	}))
	from := now
	require.NoError(t, s.PutStoreLink(ctx, &location.StoreLink{
		StoreID: "s", LocationID: cur.ID, IsPrimary: true, Active: true, AvailableFrom: &from,
	}))

	r := location.NewRegistry(s, fixedClock(), nil)
	got, ok, err := r.PrimaryLocation(ctx, "s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cur.ID.String(), got.String())

	_, ok, err = r.PrimaryLocation(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreLinkEffectiveAt(t *testing.T) {
	from := now.Add(-time.Hour)
	until := now.Add(time.Hour)
	link := location.StoreLink{Active: true, AvailableFrom: &from, AvailableUntil: &until}

	assert.True(t, link.EffectiveAt(from))
	assert.True(t, link.EffectiveAt(now))
	assert.False(t, link.EffectiveAt(until))
	assert.False(t, link.EffectiveAt(from.Add(-time.Nanosecond)))

	link.Active = false
	assert.False(t, link.EffectiveAt(now))
}
