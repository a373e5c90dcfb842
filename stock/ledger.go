package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/types"
)

// Emitter receives ledger events after they are committed.
type Emitter interface {
	EmitStockMoved(ctx context.Context, r *Record, m *Movement)
	// EmitRestocked fires after a successful positive Adjust. It is the
	// extension point for backorder fill.
	EmitRestocked(ctx context.Context, r *Record, delta int64)
}

// Ledger enforces the reservation rules on top of a Store.
type Ledger struct {
	store   Store
	clock   types.Clock
	emitter Emitter
	logger  *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock sets the clock used to stamp movements.
func WithClock(c types.Clock) LedgerOption {
	return func(l *Ledger) { l.clock = c }
}

// WithEmitter sets the event sink.
func WithEmitter(e Emitter) LedgerOption {
	return func(l *Ledger) { l.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger returns a Ledger backed by store.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		clock:  types.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open returns the record for key, creating an empty one when the variant is
// first stocked at the location.
func (l *Ledger) Open(ctx context.Context, key Key, backorderable bool) (*Record, error) {
	if key.VariantID == "" || key.LocationID.IsNil() {
		return nil, fmt.Errorf("stock: open %s: %w", key, ErrRecordNotFound)
	}
	r := &Record{
		Entity:        types.NewEntity(l.clock.Now()),
		VariantID:     key.VariantID,
		LocationID:    key.LocationID,
		Reservations:  make(map[string]int64),
		Backorderable: backorderable,
		Version:       1,
	}
	err := l.store.CreateStockRecord(ctx, r)
	if errors.Is(err, ErrRecordExists) {
		return l.store.GetStockRecord(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("stock: open %s: %w", key, err)
	}
	return r, nil
}

// Get returns the record for key.
func (l *Ledger) Get(ctx context.Context, key Key) (*Record, error) {
	return l.store.GetStockRecord(ctx, key)
}

// List returns records matching opts.
func (l *Ledger) List(ctx context.Context, opts ListOpts) ([]*Record, error) {
	return l.store.ListStockRecords(ctx, opts)
}

// Movements returns up to limit most recent movements for key, newest first.
func (l *Ledger) Movements(ctx context.Context, key Key, limit int) ([]*Movement, error) {
	return l.store.ListMovements(ctx, key, limit)
}

// Reservations lists every reservation held by a demand.
func (l *Ledger) Reservations(ctx context.Context, demandID string) ([]Reservation, error) {
	if demandID == "" {
		return nil, ErrInvalidDemand
	}
	records, err := l.store.ListStockRecords(ctx, ListOpts{DemandID: demandID})
	if err != nil {
		return nil, err
	}
	out := make([]Reservation, 0, len(records))
	for _, r := range records {
		out = append(out, Reservation{
			DemandID:   demandID,
			VariantID:  r.VariantID,
			LocationID: r.LocationID,
			Quantity:   r.ReservedFor(demandID),
		})
	}
	return out, nil
}

// Reserve sets the demand's reservation on key to qty. An existing
// reservation is resized; only growth is checked against availability.
func (l *Ledger) Reserve(ctx context.Context, key Key, demandID string, qty int64) (*Record, error) {
	if demandID == "" {
		return nil, ErrInvalidDemand
	}
	if qty <= 0 {
		return nil, InvalidQuantity(0, qty)
	}

	return l.mutate(ctx, key, "reserve", func(r *Record) (*Movement, error) {
		existing := r.Reservations[demandID]
		delta := qty - existing
		if delta == 0 {
			return nil, nil
		}
		if delta > 0 {
			if avail := r.Available(); avail < delta {
				return nil, InsufficientStock(avail, delta)
			}
		}
		r.Reservations[demandID] = qty
		return l.movement(r, MovementReserved, demandID, delta, ""), nil
	})
}

// Release drops the demand's whole reservation on key. Releasing a demand
// that holds nothing is a no-op.
func (l *Ledger) Release(ctx context.Context, key Key, demandID string) (*Record, error) {
	return l.release(ctx, key, demandID, 0)
}

// ReleasePartial releases qty units of the demand's reservation.
func (l *Ledger) ReleasePartial(ctx context.Context, key Key, demandID string, qty int64) (*Record, error) {
	if qty <= 0 {
		return nil, InvalidQuantity(0, qty)
	}
	return l.release(ctx, key, demandID, qty)
}

func (l *Ledger) release(ctx context.Context, key Key, demandID string, qty int64) (*Record, error) {
	if demandID == "" {
		return nil, ErrInvalidDemand
	}
	return l.mutate(ctx, key, "release", func(r *Record) (*Movement, error) {
		existing, ok := r.Reservations[demandID]
		if !ok {
			return nil, nil
		}
		amount := qty
		if amount == 0 {
			amount = existing
		}
		if amount > existing {
			return nil, InvalidRelease(existing, amount)
		}
		if amount == existing {
			delete(r.Reservations, demandID)
		} else {
			r.Reservations[demandID] = existing - amount
		}
		return l.movement(r, MovementReleased, demandID, -amount, ""), nil
	})
}

// ConfirmShipment turns qty reserved units into shipped units, decrementing
// both the reservation and on-hand. It is not retryable: a second call for
// an already shipped reservation fails with ErrInvalidShipment.
func (l *Ledger) ConfirmShipment(ctx context.Context, key Key, demandID string, qty int64) (*Record, error) {
	if demandID == "" {
		return nil, ErrInvalidDemand
	}
	if qty <= 0 {
		return nil, InvalidQuantity(0, qty)
	}
	return l.mutate(ctx, key, "confirm shipment", func(r *Record) (*Movement, error) {
		reserved := r.Reservations[demandID]
		if reserved < qty {
			return nil, InvalidShipment(reserved, qty)
		}
		if r.OnHand < qty {
			return nil, InsufficientStock(r.OnHand, qty)
		}
		r.OnHand -= qty
		if reserved == qty {
			delete(r.Reservations, demandID)
		} else {
			r.Reservations[demandID] = reserved - qty
		}
		return l.movement(r, MovementShipped, demandID, -qty, ""), nil
	})
}

// Adjust changes on-hand by delta for restocks, damage and count corrections.
func (l *Ledger) Adjust(ctx context.Context, key Key, delta int64, reason string) (*Record, error) {
	if delta == 0 {
		return nil, InvalidQuantity(0, 0)
	}
	if reason == "" {
		reason = "adjustment"
	}
	r, err := l.mutate(ctx, key, "adjust", func(r *Record) (*Movement, error) {
		next := r.OnHand + delta
		if next < 0 {
			return nil, InvalidQuantity(r.OnHand, -delta)
		}
		if reserved := r.Reserved(); next < reserved {
			return nil, ReservedExceedsOnHand(next, reserved)
		}
		r.OnHand = next
		return l.movement(r, MovementAdjusted, "", delta, reason), nil
	})
	if err != nil {
		return nil, err
	}
	if delta > 0 && l.emitter != nil {
		l.emitter.EmitRestocked(ctx, r, delta)
	}
	return r, nil
}

// mutate runs fn through the store, validates the result and emits the
// movement once committed.
func (l *Ledger) mutate(ctx context.Context, key Key, op string, fn func(*Record) (*Movement, error)) (*Record, error) {
	var moved *Movement
	r, err := l.store.MutateStockRecord(ctx, key, func(r *Record) (*Movement, error) {
		moved = nil
		if r.Reservations == nil {
			r.Reservations = make(map[string]int64)
		}
		m, err := fn(r)
		if err != nil || m == nil {
			return m, err
		}
		if err := r.Check(); err != nil {
			return nil, err
		}
		r.Touch(m.At)
		moved = m
		return m, nil
	})
	if err != nil {
		if IsBusinessError(err) {
			l.logger.Debug("stock transition rejected", "op", op, "key", key.String(), "error", err)
		} else {
			l.logger.Error("stock transition failed", "op", op, "key", key.String(), "error", err)
		}
		return nil, fmt.Errorf("stock: %s %s: %w", op, key, err)
	}
	if moved != nil && l.emitter != nil {
		l.emitter.EmitStockMoved(ctx, r, moved)
	}
	return r, nil
}

func (l *Ledger) movement(r *Record, kind MovementKind, demandID string, qty int64, reason string) *Movement {
	return &Movement{
		ID:            id.NewMovementID(),
		VariantID:     r.VariantID,
		LocationID:    r.LocationID,
		Kind:          kind,
		DemandID:      demandID,
		Quantity:      qty,
		Reason:        reason,
		OnHandAfter:   r.OnHand,
		ReservedAfter: r.Reserved(),
		At:            l.clock.Now().UTC(),
	}
}
