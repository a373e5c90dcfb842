package stock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/store/memory"
)

func newLedger(t *testing.T, onHand int64) (*stock.Ledger, stock.Key) {
	t.Helper()
	ctx := context.Background()
	l := stock.NewLedger(memory.New())
	key := stock.Key{VariantID: "sku-1", LocationID: id.NewLocationID()}
	_, err := l.Open(ctx, key, false)
	require.NoError(t, err)
	if onHand > 0 {
		_, err = l.Adjust(ctx, key, onHand, "seed")
		require.NoError(t, err)
	}
	return l, key
}

func TestReserveResizeBeyondAvailable(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 100)

	r, err := l.Reserve(ctx, key, "order1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), r.Available())

	_, err = l.Reserve(ctx, key, "order1", 70)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	var qe *stock.QuantityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, int64(50), qe.Available)
	assert.Equal(t, int64(20), qe.Requested)

	r, err = l.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(50), r.ReservedFor("order1"))
}

func TestReserveShrinkAndSameSize(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 10)

	_, err := l.Reserve(ctx, key, "d", 8)
	require.NoError(t, err)
	r, err := l.Reserve(ctx, key, "d", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Reserved())

	before, err := l.Movements(ctx, key, 0)
	require.NoError(t, err)
	_, err = l.Reserve(ctx, key, "d", 3)
	require.NoError(t, err)
	after, err := l.Movements(ctx, key, 0)
	require.NoError(t, err)
	assert.Len(t, after, len(before), "same-size reserve writes nothing")
}

func TestReserveRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 10)

	tests := []struct {
		name   string
		demand string
		qty    int64
		want   error
	}{
		{"zero", "d", 0, stock.ErrInvalidQuantity},
		{"negative", "d", -1, stock.ErrInvalidQuantity},
		{"no demand", "", 1, stock.ErrInvalidDemand},
		{"too many", "d", 11, stock.ErrInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Reserve(ctx, key, tt.demand, tt.qty)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReserveUnknownRecord(t *testing.T) {
	l := stock.NewLedger(memory.New())
	_, err := l.Reserve(context.Background(), stock.Key{VariantID: "x", LocationID: id.NewLocationID()}, "d", 1)
	require.ErrorIs(t, err, stock.ErrRecordNotFound)
	assert.False(t, stock.IsBusinessError(err))
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 40)
	_, err := l.Reserve(ctx, key, "other", 5)
	require.NoError(t, err)

	before, err := l.Get(ctx, key)
	require.NoError(t, err)

	_, err = l.Reserve(ctx, key, "d", 12)
	require.NoError(t, err)
	after, err := l.Release(ctx, key, "d")
	require.NoError(t, err)

	assert.Equal(t, before.OnHand, after.OnHand)
	assert.Equal(t, before.Reservations, after.Reservations)
	assert.Equal(t, before.Available(), after.Available())
}

func TestReleaseIsIdempotentAndPartial(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 10)

	r, err := l.Release(ctx, key, "nobody")
	require.NoError(t, err)
	assert.Zero(t, r.Reserved())

	_, err = l.Reserve(ctx, key, "d", 6)
	require.NoError(t, err)

	_, err = l.ReleasePartial(ctx, key, "d", 7)
	require.ErrorIs(t, err, stock.ErrInvalidRelease)

	r, err = l.ReleasePartial(ctx, key, "d", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.ReservedFor("d"))

	r, err = l.ReleasePartial(ctx, key, "d", 2)
	require.NoError(t, err)
	_, still := r.Reservations["d"]
	assert.False(t, still, "zero reservations are removed")
}

func TestConfirmShipmentIsNotRetryable(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 20)

	_, err := l.Reserve(ctx, key, "d", 5)
	require.NoError(t, err)

	r, err := l.ConfirmShipment(ctx, key, "d", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), r.OnHand)
	assert.Zero(t, r.Reserved())

	_, err = l.ConfirmShipment(ctx, key, "d", 5)
	require.ErrorIs(t, err, stock.ErrInvalidShipment)
	var qe *stock.QuantityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, int64(0), qe.Available)
	assert.Equal(t, int64(5), qe.Requested)
}

func TestAdjustGuards(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 10)
	_, err := l.Reserve(ctx, key, "d", 6)
	require.NoError(t, err)

	_, err = l.Adjust(ctx, key, -11, "count")
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)

	_, err = l.Adjust(ctx, key, -5, "damage")
	require.ErrorIs(t, err, stock.ErrReservedExceedsOnHand)

	r, err := l.Adjust(ctx, key, -4, "damage")
	require.NoError(t, err)
	assert.Equal(t, int64(6), r.OnHand)
	assert.Zero(t, r.Available())

	_, err = l.Adjust(ctx, key, 0, "noop")
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)
}

type recordingEmitter struct {
	mu        sync.Mutex
	kinds     []stock.MovementKind
	restocked []int64
}

func (e *recordingEmitter) EmitStockMoved(_ context.Context, _ *stock.Record, m *stock.Movement) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds = append(e.kinds, m.Kind)
}

func (e *recordingEmitter) EmitRestocked(_ context.Context, _ *stock.Record, delta int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restocked = append(e.restocked, delta)
}

func TestEmitterAndHistory(t *testing.T) {
	ctx := context.Background()
	em := &recordingEmitter{}
	l := stock.NewLedger(memory.New(), stock.WithEmitter(em))
	key := stock.Key{VariantID: "sku", LocationID: id.NewLocationID()}
	_, err := l.Open(ctx, key, false)
	require.NoError(t, err)

	_, err = l.Adjust(ctx, key, 10, "restock")
	require.NoError(t, err)
	_, err = l.Reserve(ctx, key, "d", 4)
	require.NoError(t, err)
	_, err = l.ConfirmShipment(ctx, key, "d", 3)
	require.NoError(t, err)
	_, err = l.Release(ctx, key, "d")
	require.NoError(t, err)
	_, err = l.Adjust(ctx, key, -1, "damage")
	require.NoError(t, err)

	assert.Equal(t, []stock.MovementKind{
		stock.MovementAdjusted,
		stock.MovementReserved,
		stock.MovementShipped,
		stock.MovementReleased,
		stock.MovementAdjusted,
	}, em.kinds)
	assert.Equal(t, []int64{10}, em.restocked)

	history, err := l.Movements(ctx, key, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, stock.MovementAdjusted, history[0].Kind)
	assert.Equal(t, "damage", history[0].Reason)
	assert.Equal(t, int64(6), history[0].OnHandAfter)
	assert.Equal(t, stock.MovementReleased, history[1].Kind)
}

func TestOpenReturnsExisting(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 7)
	r, err := l.Open(ctx, key, true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.OnHand)
	assert.False(t, r.Backorderable)
}

func TestInvariantHoldsAcrossSequences(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 50)

	type step func() error
	steps := []step{
		func() error { _, err := l.Reserve(ctx, key, "a", 20); return err },
		func() error { _, err := l.Reserve(ctx, key, "b", 40); return err },
		func() error { _, err := l.Reserve(ctx, key, "b", 30); return err },
		func() error { _, err := l.Adjust(ctx, key, -10, "count"); return err },
		func() error { _, err := l.ConfirmShipment(ctx, key, "a", 15); return err },
		func() error { _, err := l.Adjust(ctx, key, -1, "count"); return err },
		func() error { _, err := l.ReleasePartial(ctx, key, "b", 10); return err },
		func() error { _, err := l.Adjust(ctx, key, 5, "restock"); return err },
		func() error { _, err := l.Reserve(ctx, key, "c", 100); return err },
		func() error { _, err := l.Release(ctx, key, "a"); return err },
	}
	for i, s := range steps {
		err := s()
		if err != nil && !stock.IsBusinessError(err) {
			t.Fatalf("step %d: unexpected error %v", i, err)
		}
		r, getErr := l.Get(ctx, key)
		require.NoError(t, getErr)
		require.NoError(t, r.Check(), "step %d", i)
		var sum int64
		for _, q := range r.Reservations {
			sum += q
		}
		assert.Equal(t, sum, r.Reserved())
	}
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	l, key := newLedger(t, 25)

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			demandID := id.NewMovementID().String()
			_, err := l.Reserve(ctx, key, demandID, 1)
			switch {
			case err == nil:
				granted.Add(1)
			case !errors.Is(err, stock.ErrInsufficientStock):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(25), granted.Load())
	r, err := l.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(25), r.Reserved())
	assert.Zero(t, r.Available())
}

func TestReservationsByDemand(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := stock.NewLedger(store)
	locA, locB := id.NewLocationID(), id.NewLocationID()
	for _, loc := range []id.ID{locA, locB} {
		key := stock.Key{VariantID: "sku", LocationID: loc}
		_, err := l.Open(ctx, key, false)
		require.NoError(t, err)
		_, err = l.Adjust(ctx, key, 5, "seed")
		require.NoError(t, err)
	}
	_, err := l.Reserve(ctx, stock.Key{VariantID: "sku", LocationID: locA}, "o", 2)
	require.NoError(t, err)
	_, err = l.Reserve(ctx, stock.Key{VariantID: "sku", LocationID: locB}, "o", 3)
	require.NoError(t, err)

	held, err := l.Reservations(ctx, "o")
	require.NoError(t, err)
	require.Len(t, held, 2)
	var total int64
	for _, r := range held {
		total += r.Quantity
	}
	assert.Equal(t, int64(5), total)
}
