package allot_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/allot"
	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/store/memory"
	"github.com/xraph/allot/transfer"
	"github.com/xraph/allot/types"
)

var (
	newYork = &types.Coordinates{Lat: 40.7128, Lng: -74.0060}
	losAng  = &types.Coordinates{Lat: 34.0522, Lng: -118.2437}
)

func newEngine(t *testing.T, opts ...allot.Option) (*allot.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	e := allot.New(s, opts...)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	return e, s
}

func warehouse(t *testing.T, e *allot.Engine, name string, priority int, coords *types.Coordinates) *location.Location {
	t.Helper()
	l := &location.Location{
		Name:     name,
		Type:     location.TypeWarehouse,
		Priority: priority,
		Active:   true,
		Capabilities: location.Capabilities{
			CanFulfillOnline:    true,
			CanReceiveShipments: true,
		},
		Coordinates: coords,
	}
	require.NoError(t, e.CreateLocation(context.Background(), l))
	return l
}

func retail(t *testing.T, e *allot.Engine, name string, coords *types.Coordinates) *location.Location {
	t.Helper()
	l := &location.Location{
		Name:   name,
		Type:   location.TypeRetailStore,
		Active: true,
		Capabilities: location.Capabilities{
			CanFulfillInStore:   true,
			CanReceiveShipments: true,
		},
		Coordinates: coords,
	}
	require.NoError(t, e.CreateLocation(context.Background(), l))
	return l
}

func restock(t *testing.T, e *allot.Engine, variant string, loc *location.Location, qty int64) {
	t.Helper()
	_, err := e.Restock(context.Background(), variant, loc.ID, qty)
	require.NoError(t, err)
}

func online(items ...demand.Item) *demand.Context {
	return &demand.Context{OrderType: demand.OrderOnline, Items: items}
}

func reserved(t *testing.T, e *allot.Engine, variant string, loc *location.Location, demandID string) int64 {
	t.Helper()
	r, err := e.StockRecord(context.Background(), variant, loc.ID)
	require.NoError(t, err)
	return r.ReservedFor(demandID)
}

// failingStore fails every stock mutation of one key.
type failingStore struct {
	*memory.Store
	fail string
}

var errInjected = errors.New("injected store failure")

func (s *failingStore) MutateStockRecord(ctx context.Context, key stock.Key, fn stock.MutateFunc) (*stock.Record, error) {
	if key.String() == s.fail {
		return nil, errInjected
	}
	return s.Store.MutateStockRecord(ctx, key, fn)
}

// recorder captures allocation hooks.
type recorder struct {
	mu        sync.Mutex
	allocated map[string][]allocation.Decision
	failed    map[string]error
	pickups   []pickup.State
}

func newRecorder() *recorder {
	return &recorder{allocated: map[string][]allocation.Decision{}, failed: map[string]error{}}
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnAllocated(_ context.Context, orderID string, d []allocation.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocated[orderID] = d
	return nil
}

func (r *recorder) OnAllocationFailed(_ context.Context, orderID string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[orderID] = err
	return nil
}

func (r *recorder) OnPickupTransition(_ context.Context, t *pickup.Ticket, _ pickup.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pickups = append(r.pickups, t.State)
	return nil
}

// ──────────────────────────────────────────────────
// Fulfill
// ──────────────────────────────────────────────────

func TestFulfillSplitsAcrossRankedLocations(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	e, _ := newEngine(t, allot.WithPlugin(rec))
	first := warehouse(t, e, "first", 1, nil)
	second := warehouse(t, e, "second", 2, nil)
	restock(t, e, "sku", first, 3)
	restock(t, e, "sku", second, 4)

	res, err := e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "sku", Quantity: 5}), allot.Policy{})
	require.NoError(t, err)
	assert.True(t, res.Complete())
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, first.ID.String(), res.Allocations[0].LocationID.String())
	assert.Equal(t, int64(3), res.Allocations[0].Quantity)
	assert.Equal(t, int64(2), res.Allocations[1].Quantity)

	assert.Equal(t, int64(3), reserved(t, e, "sku", first, "o1"))
	assert.Equal(t, int64(2), reserved(t, e, "sku", second, "o1"))

	require.Len(t, rec.allocated["o1"], 1)
	d := rec.allocated["o1"][0]
	require.Len(t, d.Ranking, 2)
	assert.NotEmpty(t, d.Ranking[0].Breakdown)
}

func TestFulfillMergesDuplicateItems(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, nil)
	restock(t, e, "sku", wh, 10)

	_, err := e.Fulfill(ctx, "o1", online(
		demand.Item{VariantID: "sku", Quantity: 2},
		demand.Item{VariantID: "sku", Quantity: 3},
	), allot.Policy{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), reserved(t, e, "sku", wh, "o1"))
}

func TestFulfillShortfall(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	e, _ := newEngine(t, allot.WithPlugin(rec))
	wh := warehouse(t, e, "wh", 1, nil)
	restock(t, e, "sku", wh, 2)

	_, err := e.Fulfill(ctx, "strict", online(demand.Item{VariantID: "sku", Quantity: 5}), allot.Policy{})
	require.ErrorIs(t, err, allot.ErrInsufficientStock)
	var qe *stock.QuantityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, int64(2), qe.Available)
	assert.Equal(t, int64(5), qe.Requested)
	assert.Zero(t, reserved(t, e, "sku", wh, "strict"))
	assert.ErrorIs(t, rec.failed["strict"], allot.ErrInsufficientStock)

	res, err := e.Fulfill(ctx, "lenient", online(demand.Item{VariantID: "sku", Quantity: 5}), allot.Policy{AllowPartial: true})
	require.NoError(t, err)
	assert.False(t, res.Complete())
	require.Len(t, res.Shortfalls, 1)
	assert.Equal(t, allot.Shortfall{VariantID: "sku", Quantity: 3}, res.Shortfalls[0])
	assert.Equal(t, int64(2), reserved(t, e, "sku", wh, "lenient"))
}

func TestFulfillBackorderableNeverOversells(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, nil)
	_, err := e.OpenStock(ctx, "sku", wh.ID, true)
	require.NoError(t, err)
	restock(t, e, "sku", wh, 1)

	res, err := e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "sku", Quantity: 4}), allot.Policy{AllowPartial: true})
	require.NoError(t, err)
	require.Len(t, res.Shortfalls, 1)
	assert.Equal(t, int64(3), res.Shortfalls[0].Quantity)
	assert.Equal(t, int64(1), reserved(t, e, "sku", wh, "o1"))

	r, err := e.StockRecord(ctx, "sku", wh.ID)
	require.NoError(t, err)
	assert.True(t, r.Backorderable)
	assert.Zero(t, r.Available())
}

func TestFulfillNoCandidates(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	store := retail(t, e, "store", nil)
	restock(t, e, "sku", store, 10)

	_, err := e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "sku", Quantity: 1}), allot.Policy{})
	require.ErrorIs(t, err, allot.ErrNoCandidateLocations)
}

func TestFulfillValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	warehouse(t, e, "wh", 1, nil)

	_, err := e.Fulfill(ctx, "", online(demand.Item{VariantID: "sku", Quantity: 1}), allot.Policy{})
	require.ErrorIs(t, err, allot.ErrInvalidInput)

	_, err = e.Fulfill(ctx, "o1", nil, allot.Policy{})
	require.ErrorIs(t, err, allot.ErrInvalidInput)

	_, err = e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "sku", Quantity: 0}), allot.Policy{})
	require.ErrorIs(t, err, allot.ErrInvalidQuantity)

	_, err = e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "sku", Quantity: 1}), allot.Policy{Strategy: "telepathy"})
	require.ErrorIs(t, err, allot.ErrUnknownStrategy)

	_, err = e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "sku", Quantity: 1}), allot.Policy{Strategy: allot.StrategyNearest})
	require.Error(t, err)
}

func TestFulfillRejectsNegativeLineBeforeMerging(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, nil)
	restock(t, e, "sku", wh, 10)

	_, err := e.Fulfill(ctx, "order-neg", online(
		demand.Item{VariantID: "sku", Quantity: -3},
		demand.Item{VariantID: "sku", Quantity: 5},
	), allot.Policy{})
	require.ErrorIs(t, err, allot.ErrInvalidQuantity)
	var qe *stock.QuantityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, int64(-3), qe.Requested)
	assert.Zero(t, reserved(t, e, "sku", wh, "order-neg"))
}

func TestFulfillNearestNeedsCustomer(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, newYork)
	restock(t, e, "sku", wh, 5)

	_, err := e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "sku", Quantity: 1}), allot.Policy{Strategy: allot.StrategyNearest})
	require.ErrorIs(t, err, allot.ErrMissingCustomerLocation)
}

func TestFulfillStrategies(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	ny := warehouse(t, e, "ny", 1, newYork)
	la := warehouse(t, e, "la", 2, losAng)
	restock(t, e, "sku", ny, 5)
	restock(t, e, "sku", la, 50)

	dc := online(demand.Item{VariantID: "sku", Quantity: 1})
	dc.Customer = &types.Coordinates{Lat: 40.73, Lng: -73.99}

	res, err := e.Fulfill(ctx, "near", dc, allot.Policy{Strategy: allot.StrategyNearest})
	require.NoError(t, err)
	assert.Equal(t, ny.ID.String(), res.Allocations[0].LocationID.String())

	res, err = e.Fulfill(ctx, "deep", dc, allot.Policy{Strategy: allot.StrategyHighestStock})
	require.NoError(t, err)
	assert.Equal(t, la.ID.String(), res.Allocations[0].LocationID.String())
}

func TestFulfillPrefersPrimaryStoreLocation(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	first := warehouse(t, e, "first", 1, nil)
	second := warehouse(t, e, "second", 2, nil)
	restock(t, e, "sku", first, 10)
	restock(t, e, "sku", second, 10)

	require.NoError(t, e.LinkStore(ctx, &location.StoreLink{StoreID: "s1", LocationID: first.ID, Active: true}))
	require.NoError(t, e.LinkStore(ctx, &location.StoreLink{StoreID: "s1", LocationID: second.ID, IsPrimary: true, Active: true}))

	dc := online(demand.Item{VariantID: "sku", Quantity: 2})
	dc.StoreID = "s1"
	res, err := e.Fulfill(ctx, "o1", dc, allot.Policy{})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, second.ID.String(), res.Allocations[0].LocationID.String())
}

func TestLinkStoreRejectsOverlappingPrimaries(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	a := warehouse(t, e, "a", 1, nil)
	b := warehouse(t, e, "b", 2, nil)

	require.NoError(t, e.LinkStore(ctx, &location.StoreLink{StoreID: "s1", LocationID: a.ID, IsPrimary: true, Active: true}))
	err := e.LinkStore(ctx, &location.StoreLink{StoreID: "s1", LocationID: b.ID, IsPrimary: true, Active: true})
	require.ErrorIs(t, err, allot.ErrInvalidInput)

	err = e.LinkStore(ctx, &location.StoreLink{StoreID: "s1", LocationID: id.NewLocationID(), Active: true})
	require.ErrorIs(t, err, allot.ErrLocationNotFound)
}

func TestRefulfillResizesAndReleasesStale(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, nil)
	restock(t, e, "a", wh, 5)
	restock(t, e, "b", wh, 5)

	_, err := e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "a", Quantity: 3}), allot.Policy{})
	require.NoError(t, err)

	// The order's own hold counts toward what it can have.
	_, err = e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "a", Quantity: 5}), allot.Policy{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), reserved(t, e, "a", wh, "o1"))

	_, err = e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "b", Quantity: 1}), allot.Policy{})
	require.NoError(t, err)
	assert.Zero(t, reserved(t, e, "a", wh, "o1"))
	assert.Equal(t, int64(1), reserved(t, e, "b", wh, "o1"))

	held, err := e.Reservations(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "b", held[0].VariantID)
}

func TestFulfillRollsBackOnReservationFailure(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := &failingStore{Store: memory.New()}
			e := allot.New(s, allot.WithParallelReservations(parallel))
			require.NoError(t, e.Start(ctx))

			first := warehouse(t, e, "first", 1, nil)
			second := warehouse(t, e, "second", 2, nil)
			restock(t, e, "a", first, 5)
			restock(t, e, "b", second, 5)
			s.fail = stock.Key{VariantID: "b", LocationID: second.ID}.String()

			_, err := e.Fulfill(ctx, "o1", online(
				demand.Item{VariantID: "a", Quantity: 2},
				demand.Item{VariantID: "b", Quantity: 2},
			), allot.Policy{})
			require.ErrorIs(t, err, errInjected)

			held, err := e.Reservations(ctx, "o1")
			require.NoError(t, err)
			assert.Empty(t, held)

			r, err := e.StockRecord(ctx, "a", first.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(5), r.Available())
		})
	}
}

func TestFulfillRollbackRestoresPriorHolds(t *testing.T) {
	ctx := context.Background()
	s := &failingStore{Store: memory.New()}
	e := allot.New(s, allot.WithParallelReservations(false))
	require.NoError(t, e.Start(ctx))

	first := warehouse(t, e, "first", 1, nil)
	second := warehouse(t, e, "second", 2, nil)
	restock(t, e, "a", first, 10)
	restock(t, e, "b", second, 10)

	_, err := e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "a", Quantity: 2}), allot.Policy{})
	require.NoError(t, err)

	s.fail = stock.Key{VariantID: "b", LocationID: second.ID}.String()
	_, err = e.Fulfill(ctx, "o1", online(
		demand.Item{VariantID: "a", Quantity: 6},
		demand.Item{VariantID: "b", Quantity: 1},
	), allot.Policy{})
	require.Error(t, err)
	assert.Equal(t, int64(2), reserved(t, e, "a", first, "o1"))
}

// ──────────────────────────────────────────────────
// Cart and payment
// ──────────────────────────────────────────────────

func TestCartLifecycle(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, nil)
	restock(t, e, "sku", wh, 10)

	_, err := e.ReserveForCart(ctx, "cart-1", online(demand.Item{VariantID: "sku", Quantity: 4}))
	require.NoError(t, err)

	released, err := e.ReleaseForCart(ctx, "cart-1")
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, int64(4), released[0].Quantity)

	r, err := e.StockRecord(ctx, "sku", wh.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.Available())

	released, err = e.ReleaseForCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Empty(t, released)
}

func TestConfirmShipmentOnPayment(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, nil)
	restock(t, e, "sku", wh, 10)

	_, err := e.Fulfill(ctx, "o1", online(demand.Item{VariantID: "sku", Quantity: 3}), allot.Policy{})
	require.NoError(t, err)

	shipped, err := e.ConfirmShipmentOnPayment(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, shipped, 1)

	r, err := e.StockRecord(ctx, "sku", wh.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.OnHand)
	assert.Zero(t, r.Reserved())

	_, err = e.ConfirmShipmentOnPayment(ctx, "o1")
	require.ErrorIs(t, err, allot.ErrNothingToConfirm)
}

// ──────────────────────────────────────────────────
// Pickups and transfers
// ──────────────────────────────────────────────────

func TestPickupThroughEngine(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	e, _ := newEngine(t, allot.WithPlugin(rec))
	shop := retail(t, e, "shop", newYork)
	restock(t, e, "sku", shop, 5)

	dc := &demand.Context{
		OrderType: demand.OrderInstorePickup,
		Items:     []demand.Item{{VariantID: "sku", Quantity: 2}},
	}
	_, err := e.Fulfill(ctx, "o1", dc, allot.Policy{})
	require.NoError(t, err)

	ticket, err := e.CreatePickup(ctx, "o1", shop.ID)
	require.NoError(t, err)
	require.Len(t, ticket.Lines, 1)
	assert.Equal(t, int64(2), ticket.Lines[0].Quantity)

	r, err := e.StockRecord(ctx, "sku", shop.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.OnHand)
	assert.Zero(t, r.Reserved())

	_, err = e.CompletePickup(ctx, ticket.ID, ticket.Code)
	require.ErrorIs(t, err, allot.ErrNotReady)

	_, err = e.MarkPickupReady(ctx, ticket.ID)
	require.NoError(t, err)
	done, err := e.CompletePickup(ctx, ticket.ID, ticket.Code)
	require.NoError(t, err)
	assert.Equal(t, pickup.StatePickedUp, done.State)

	assert.Equal(t, []pickup.State{pickup.StatePending, pickup.StateReady, pickup.StatePickedUp}, rec.pickups)
}

func TestCancelPickupReturnsStock(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	shop := retail(t, e, "shop", nil)
	restock(t, e, "sku", shop, 5)

	dc := &demand.Context{
		OrderType: demand.OrderInstorePickup,
		Items:     []demand.Item{{VariantID: "sku", Quantity: 2}},
	}
	_, err := e.Fulfill(ctx, "o1", dc, allot.Policy{})
	require.NoError(t, err)
	ticket, err := e.CreatePickup(ctx, "o1", shop.ID)
	require.NoError(t, err)

	cancelled, err := e.CancelPickup(ctx, ticket.ID, "no show")
	require.NoError(t, err)
	assert.Equal(t, pickup.StateCancelled, cancelled.State)

	r, err := e.StockRecord(ctx, "sku", shop.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.OnHand)
}

func TestCreatePickupRequiresInStoreLocation(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, nil)

	_, err := e.CreatePickup(ctx, "o1", wh.ID)
	require.ErrorIs(t, err, allot.ErrLocationCannotPickup)
}

func TestTransferThroughEngine(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, nil)
	shop := retail(t, e, "shop", nil)
	restock(t, e, "sku", wh, 20)

	o, err := e.CreateTransfer(ctx, wh.ID, shop.ID, []transfer.Line{{VariantID: "sku", Quantity: 8}}, nil)
	require.NoError(t, err)
	_, err = e.InitiateTransfer(ctx, o.ID)
	require.NoError(t, err)
	_, err = e.ReceiveTransfer(ctx, o.ID, nil)
	require.NoError(t, err)

	src, err := e.StockRecord(ctx, "sku", wh.ID)
	require.NoError(t, err)
	dst, err := e.StockRecord(ctx, "sku", shop.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), src.OnHand)
	assert.Equal(t, int64(8), dst.OnHand)

	_, err = e.CreateTransfer(ctx, wh.ID, id.NewLocationID(), []transfer.Line{{VariantID: "sku", Quantity: 1}}, nil)
	require.ErrorIs(t, err, allot.ErrLocationNotFound)
}

// ──────────────────────────────────────────────────
// Availability
// ──────────────────────────────────────────────────

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	wh := warehouse(t, e, "wh", 1, nil)
	east := retail(t, e, "east", newYork)
	west := retail(t, e, "west", losAng)
	thin := retail(t, e, "thin", newYork)
	restock(t, e, "sku", wh, 4)
	restock(t, e, "sku", east, 3)
	restock(t, e, "sku", west, 3)
	restock(t, e, "sku", thin, 1)

	got, err := e.CheckAvailability(ctx, "sku", 2, losAng)
	require.NoError(t, err)
	assert.True(t, got.OnlineAvailable)
	assert.Equal(t, int64(4), got.OnlineQuantity)
	require.Len(t, got.PickupCandidates, 2)
	assert.Equal(t, west.ID.String(), got.PickupCandidates[0].Location.ID.String())
	assert.Equal(t, east.ID.String(), got.PickupCandidates[1].Location.ID.String())
	require.NotNil(t, got.PickupCandidates[0].DistanceKm)
	assert.InDelta(t, 0, *got.PickupCandidates[0].DistanceKm, 0.001)

	got, err = e.CheckAvailability(ctx, "sku", 5, nil)
	require.NoError(t, err)
	assert.False(t, got.OnlineAvailable)
	assert.Empty(t, got.PickupCandidates)

	_, err = e.CheckAvailability(ctx, "sku", 0, nil)
	require.ErrorIs(t, err, allot.ErrInvalidQuantity)
}
