package transfer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/store/memory"
	"github.com/xraph/allot/transfer"
	"github.com/xraph/allot/types"
)

type fixture struct {
	ledger *stock.Ledger
	flow   *transfer.Workflow
	source id.LocationID
	dest   id.LocationID
}

func setup(t *testing.T, onHand map[string]int64) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	f := &fixture{
		ledger: stock.NewLedger(s),
		source: id.NewLocationID(),
		dest:   id.NewLocationID(),
	}
	f.flow = transfer.NewWorkflow(s, f.ledger)
	for variant, qty := range onHand {
		key := stock.Key{VariantID: variant, LocationID: f.source}
		_, err := f.ledger.Open(ctx, key, false)
		require.NoError(t, err)
		_, err = f.ledger.Adjust(ctx, key, qty, "seed")
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) onHand(t *testing.T, variant string, loc id.LocationID) int64 {
	t.Helper()
	r, err := f.ledger.Get(context.Background(), stock.Key{VariantID: variant, LocationID: loc})
	require.NoError(t, err)
	return r.OnHand
}

func TestInitiateFailsWithoutPartialTransfer(t *testing.T) {
	ctx := context.Background()
	f := setup(t, map[string]int64{"sku": 20})

	o, err := f.flow.Create(ctx, f.source, f.dest, []transfer.Line{{VariantID: "sku", Quantity: 30}}, nil)
	require.NoError(t, err)

	_, err = f.flow.Initiate(ctx, o.ID)
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)

	got, err := f.flow.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatePending, got.State)
	assert.Equal(t, int64(20), f.onHand(t, "sku", f.source))
}

func TestInitiateIsAllOrNothingAcrossLines(t *testing.T) {
	ctx := context.Background()
	f := setup(t, map[string]int64{"a": 10, "b": 1})

	o, err := f.flow.Create(ctx, f.source, f.dest, []transfer.Line{
		{VariantID: "a", Quantity: 5},
		{VariantID: "b", Quantity: 2},
	}, nil)
	require.NoError(t, err)

	_, err = f.flow.Initiate(ctx, o.ID)
	require.Error(t, err)
	assert.Equal(t, int64(10), f.onHand(t, "a", f.source))
	assert.Equal(t, int64(1), f.onHand(t, "b", f.source))
}

func TestTransferRespectsSourceReservations(t *testing.T) {
	ctx := context.Background()
	f := setup(t, map[string]int64{"sku": 10})
	_, err := f.ledger.Reserve(ctx, stock.Key{VariantID: "sku", LocationID: f.source}, "order", 8)
	require.NoError(t, err)

	o, err := f.flow.Create(ctx, f.source, f.dest, []transfer.Line{{VariantID: "sku", Quantity: 5}}, nil)
	require.NoError(t, err)
	_, err = f.flow.Initiate(ctx, o.ID)
	require.ErrorIs(t, err, stock.ErrReservedExceedsOnHand)
}

func TestPartialReceipt(t *testing.T) {
	ctx := context.Background()
	f := setup(t, map[string]int64{"sku": 20})

	o, err := f.flow.Create(ctx, f.source, f.dest, []transfer.Line{{VariantID: "sku", Quantity: 12}}, nil)
	require.NoError(t, err)
	o, err = f.flow.Initiate(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateInTransit, o.State)
	assert.Equal(t, int64(8), f.onHand(t, "sku", f.source))

	_, err = f.flow.Receive(ctx, o.ID, map[string]int64{"sku": 13})
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)
	_, err = f.flow.Receive(ctx, o.ID, map[string]int64{"other": 1})
	require.ErrorIs(t, err, transfer.ErrUnknownLine)

	o, err = f.flow.Receive(ctx, o.ID, map[string]int64{"sku": 9})
	require.NoError(t, err)
	assert.Equal(t, transfer.StateReceived, o.State)
	assert.True(t, o.Partial())
	assert.Equal(t, int64(9), o.Lines[0].Received)
	assert.Equal(t, int64(3), o.Lines[0].Shortfall())
	assert.Equal(t, int64(9), f.onHand(t, "sku", f.dest))

	_, err = f.flow.Cancel(ctx, o.ID)
	require.ErrorIs(t, err, types.ErrInvalidStateTransition)
}

func TestReceiveAllWithNilMap(t *testing.T) {
	ctx := context.Background()
	f := setup(t, map[string]int64{"sku": 5})
	o, err := f.flow.Create(ctx, f.source, f.dest, []transfer.Line{{VariantID: "sku", Quantity: 5}}, nil)
	require.NoError(t, err)
	_, err = f.flow.Receive(ctx, o.ID, nil)
	require.ErrorIs(t, err, types.ErrInvalidStateTransition)

	_, err = f.flow.Initiate(ctx, o.ID)
	require.NoError(t, err)
	o, err = f.flow.Receive(ctx, o.ID, nil)
	require.NoError(t, err)
	assert.False(t, o.Partial())
	assert.Equal(t, int64(5), f.onHand(t, "sku", f.dest))
	assert.Zero(t, f.onHand(t, "sku", f.source))
}

func TestCancelInTransitRestoresSource(t *testing.T) {
	ctx := context.Background()
	f := setup(t, map[string]int64{"sku": 20})

	o, err := f.flow.Create(ctx, f.source, f.dest, []transfer.Line{{VariantID: "sku", Quantity: 7}}, nil)
	require.NoError(t, err)
	_, err = f.flow.Initiate(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(13), f.onHand(t, "sku", f.source))

	o, err = f.flow.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateCancelled, o.State)
	assert.Equal(t, int64(20), f.onHand(t, "sku", f.source))

	history, err := f.ledger.Movements(ctx, stock.Key{VariantID: "sku", LocationID: f.source}, 1)
	require.NoError(t, err)
	assert.Equal(t, transfer.ReasonCancelled, history[0].Reason)

	_, err = f.flow.Initiate(ctx, o.ID)
	require.ErrorIs(t, err, types.ErrInvalidStateTransition)
}

// cancelFailingLedger fails the cancellation restock of one variant.
type cancelFailingLedger struct {
	*stock.Ledger
	variant string
}

var errRestock = errors.New("restock unavailable")

func (l *cancelFailingLedger) Adjust(ctx context.Context, key stock.Key, delta int64, reason string) (*stock.Record, error) {
	if key.VariantID == l.variant && reason == transfer.ReasonCancelled {
		return nil, errRestock
	}
	return l.Ledger.Adjust(ctx, key, delta, reason)
}

func TestCancelInTransitCompensatesEarlierLines(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	source, dest := id.NewLocationID(), id.NewLocationID()
	ledger := &cancelFailingLedger{Ledger: stock.NewLedger(s), variant: "b"}
	flow := transfer.NewWorkflow(s, ledger)
	for _, variant := range []string{"a", "b"} {
		key := stock.Key{VariantID: variant, LocationID: source}
		_, err := ledger.Open(ctx, key, false)
		require.NoError(t, err)
		_, err = ledger.Adjust(ctx, key, 10, "seed")
		require.NoError(t, err)
	}
	onHand := func(variant string) int64 {
		r, err := ledger.Get(ctx, stock.Key{VariantID: variant, LocationID: source})
		require.NoError(t, err)
		return r.OnHand
	}

	o, err := flow.Create(ctx, source, dest, []transfer.Line{
		{VariantID: "a", Quantity: 4},
		{VariantID: "b", Quantity: 3},
	}, nil)
	require.NoError(t, err)
	_, err = flow.Initiate(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, int64(6), onHand("a"))
	require.Equal(t, int64(7), onHand("b"))

	_, err = flow.Cancel(ctx, o.ID)
	require.ErrorIs(t, err, errRestock)

	assert.Equal(t, int64(6), onHand("a"), "restock of the first line is taken back")
	assert.Equal(t, int64(7), onHand("b"))

	got, err := flow.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateInTransit, got.State)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	_, err := f.flow.Create(ctx, f.source, f.source, []transfer.Line{{VariantID: "sku", Quantity: 1}}, nil)
	require.ErrorIs(t, err, transfer.ErrSameLocation)

	_, err = f.flow.Create(ctx, f.source, f.dest, nil, nil)
	require.ErrorIs(t, err, transfer.ErrNoLines)

	_, err = f.flow.Create(ctx, f.source, f.dest, []transfer.Line{{VariantID: "sku", Quantity: 0}}, nil)
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)

	o, err := f.flow.Create(ctx, f.source, f.dest, []transfer.Line{
		{VariantID: "sku", Quantity: 2},
		{VariantID: "sku", Quantity: 3},
	}, nil)
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, int64(5), o.Lines[0].Quantity)
}
