package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/types"
)

// Stock reasons recorded on the ledger movements a transfer produces.
const (
	ReasonOut       = "transfer-out"
	ReasonIn        = "transfer-in"
	ReasonCancelled = "transfer-cancelled"
	ReasonReverted  = "transfer-out-reverted"
)

// Ledger is the part of the stock ledger a transfer needs.
type Ledger interface {
	Open(ctx context.Context, key stock.Key, backorderable bool) (*stock.Record, error)
	Adjust(ctx context.Context, key stock.Key, delta int64, reason string) (*stock.Record, error)
}

// Emitter receives committed transitions. from is empty on creation.
type Emitter interface {
	EmitTransferTransition(ctx context.Context, o *Order, from State)
}

// Workflow drives transfer orders and the stock adjustments behind them.
type Workflow struct {
	store   Store
	ledger  Ledger
	newID   func() id.TransferID
	clock   types.Clock
	emitter Emitter
	logger  *slog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithIDFunc replaces the order id source.
func WithIDFunc(fn func() id.TransferID) Option {
	return func(w *Workflow) { w.newID = fn }
}

// WithClock sets the clock used for transition timestamps.
func WithClock(c types.Clock) Option {
	return func(w *Workflow) { w.clock = c }
}

// WithEmitter sets the event sink.
func WithEmitter(e Emitter) Option {
	return func(w *Workflow) { w.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// NewWorkflow returns a Workflow over store and ledger.
func NewWorkflow(store Store, ledger Ledger, opts ...Option) *Workflow {
	w := &Workflow{
		store:  store,
		ledger: ledger,
		newID:  id.NewTransferID,
		clock:  types.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create records a pending transfer. Lines for the same variant are merged.
func (w *Workflow) Create(ctx context.Context, source, destination id.LocationID, lines []Line, receiveBy *time.Time) (*Order, error) {
	if source.IsNil() || destination.IsNil() {
		return nil, fmt.Errorf("transfer: create: source and destination are required")
	}
	if source.String() == destination.String() {
		return nil, ErrSameLocation
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	o := &Order{
		Entity:             types.NewEntity(w.clock.Now()),
		ID:                 w.newID(),
		SourceID:           source,
		DestinationID:      destination,
		Lines:              merged,
		State:              StatePending,
		RequestedReceiveBy: receiveBy,
		Version:            1,
	}
	if err := w.store.CreateTransfer(ctx, o); err != nil {
		return nil, err
	}
	w.emit(ctx, o, "")
	return o, nil
}

// Initiate deducts every line from the source and marks the order in
// transit. It is all or nothing: if any deduction fails the earlier ones are
// reversed and the order stays pending.
func (w *Workflow) Initiate(ctx context.Context, transferID id.TransferID) (*Order, error) {
	o, err := w.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if o.State != StatePending {
		return nil, types.InvalidTransition("transfer", o.State, StateInTransit)
	}

	for i, line := range o.Lines {
		key := stock.Key{VariantID: line.VariantID, LocationID: o.SourceID}
		if _, err := w.ledger.Adjust(ctx, key, -line.Quantity, ReasonOut); err != nil {
			w.revert(ctx, o, o.Lines[:i], ReasonReverted)
			return nil, fmt.Errorf("transfer: initiate %s: %w", o.ID, err)
		}
	}

	from := o.State
	now := w.clock.Now().UTC()
	o.State = StateInTransit
	o.InitiatedAt = &now
	o.Touch(now)
	if err := w.store.UpdateTransfer(ctx, o); err != nil {
		w.revert(ctx, o, o.Lines, ReasonReverted)
		return nil, err
	}
	w.emit(ctx, o, from)
	return o, nil
}

// Receive books the received quantities into the destination and marks the
// order received. A nil map receives every line in full. Missing variants
// count as zero received; short receipt is recorded, not rejected.
func (w *Workflow) Receive(ctx context.Context, transferID id.TransferID, received map[string]int64) (*Order, error) {
	o, err := w.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if o.State != StateInTransit {
		return nil, types.InvalidTransition("transfer", o.State, StateReceived)
	}

	counts := make([]int64, len(o.Lines))
	known := make(map[string]bool, len(o.Lines))
	for i, line := range o.Lines {
		known[line.VariantID] = true
		q := line.Quantity
		if received != nil {
			q = received[line.VariantID]
		}
		if q < 0 || q > line.Quantity {
			return nil, fmt.Errorf("transfer: receive %s: %w", line.VariantID, stock.InvalidQuantity(line.Quantity, q))
		}
		counts[i] = q
	}
	for variant := range received {
		if !known[variant] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLine, variant)
		}
	}

	for i, line := range o.Lines {
		if counts[i] == 0 {
			continue
		}
		key := stock.Key{VariantID: line.VariantID, LocationID: o.DestinationID}
		if _, err := w.ledger.Open(ctx, key, false); err != nil {
			w.unreceive(ctx, o, counts[:i])
			return nil, err
		}
		if _, err := w.ledger.Adjust(ctx, key, counts[i], ReasonIn); err != nil {
			w.unreceive(ctx, o, counts[:i])
			return nil, fmt.Errorf("transfer: receive %s: %w", o.ID, err)
		}
	}

	from := o.State
	now := w.clock.Now().UTC()
	for i := range o.Lines {
		o.Lines[i].Received = counts[i]
	}
	o.State = StateReceived
	o.ReceivedAt = &now
	o.Touch(now)
	if err := w.store.UpdateTransfer(ctx, o); err != nil {
		w.unreceive(ctx, o, counts)
		return nil, err
	}
	if o.Partial() {
		w.logger.Info("transfer received short", "transfer_id", o.ID.String())
	}
	w.emit(ctx, o, from)
	return o, nil
}

// Cancel cancels a pending or in-transit order. Stock already deducted from
// the source is put back first.
func (w *Workflow) Cancel(ctx context.Context, transferID id.TransferID) (*Order, error) {
	o, err := w.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	from := o.State
	switch from {
	case StatePending:
	case StateInTransit:
		for i, line := range o.Lines {
			key := stock.Key{VariantID: line.VariantID, LocationID: o.SourceID}
			if _, err := w.ledger.Adjust(ctx, key, line.Quantity, ReasonCancelled); err != nil {
				w.rededuct(ctx, o, o.Lines[:i])
				return nil, fmt.Errorf("transfer: cancel %s: %w", o.ID, err)
			}
		}
	default:
		return nil, types.InvalidTransition("transfer", from, StateCancelled)
	}

	now := w.clock.Now().UTC()
	o.State = StateCancelled
	o.CancelledAt = &now
	o.Touch(now)
	if err := w.store.UpdateTransfer(ctx, o); err != nil {
		if from == StateInTransit {
			w.rededuct(ctx, o, o.Lines)
		}
		return nil, err
	}
	w.emit(ctx, o, from)
	return o, nil
}

// Get returns an order.
func (w *Workflow) Get(ctx context.Context, transferID id.TransferID) (*Order, error) {
	return w.store.GetTransfer(ctx, transferID)
}

// List returns orders matching opts.
func (w *Workflow) List(ctx context.Context, opts ListOpts) ([]*Order, error) {
	return w.store.ListTransfers(ctx, opts)
}

// revert puts deducted lines back on the source.
func (w *Workflow) revert(ctx context.Context, o *Order, lines []Line, reason string) {
	for _, line := range lines {
		key := stock.Key{VariantID: line.VariantID, LocationID: o.SourceID}
		if _, err := w.ledger.Adjust(ctx, key, line.Quantity, reason); err != nil {
			w.logger.Error("transfer compensation failed",
				"transfer_id", o.ID.String(),
				"variant_id", line.VariantID,
				"error", err,
			)
		}
	}
}

// unreceive takes booked quantities back off the destination.
func (w *Workflow) unreceive(ctx context.Context, o *Order, counts []int64) {
	for i, q := range counts {
		if q == 0 {
			continue
		}
		key := stock.Key{VariantID: o.Lines[i].VariantID, LocationID: o.DestinationID}
		if _, err := w.ledger.Adjust(ctx, key, -q, ReasonReverted); err != nil {
			w.logger.Error("transfer compensation failed",
				"transfer_id", o.ID.String(),
				"variant_id", o.Lines[i].VariantID,
				"error", err,
			)
		}
	}
}

// rededuct takes a cancellation's restock of lines back off the source.
func (w *Workflow) rededuct(ctx context.Context, o *Order, lines []Line) {
	for _, line := range lines {
		key := stock.Key{VariantID: line.VariantID, LocationID: o.SourceID}
		if _, err := w.ledger.Adjust(ctx, key, -line.Quantity, ReasonOut); err != nil {
			w.logger.Error("transfer compensation failed",
				"transfer_id", o.ID.String(),
				"variant_id", line.VariantID,
				"error", err,
			)
		}
	}
}

func (w *Workflow) emit(ctx context.Context, o *Order, from State) {
	if w.emitter != nil {
		w.emitter.EmitTransferTransition(ctx, o, from)
	}
}

func mergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	index := make(map[string]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.VariantID == "" {
			return nil, fmt.Errorf("transfer: line without variant")
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("transfer: line %s: %w", l.VariantID, stock.InvalidQuantity(0, l.Quantity))
		}
		if i, ok := index[l.VariantID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.VariantID] = len(out)
		out = append(out, Line{VariantID: l.VariantID, Quantity: l.Quantity})
	}
	return out, nil
}
