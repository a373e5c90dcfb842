package pickup

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/types"
)

// Emitter receives committed transitions. from is empty on creation.
type Emitter interface {
	EmitPickupTransition(ctx context.Context, t *Ticket, from State)
}

// DefaultCodeAttempts bounds how many codes Create tries before giving up.
const DefaultCodeAttempts = 8

// Workflow drives tickets through their states.
type Workflow struct {
	store    Store
	codes    CodeGenerator
	newID    func() id.PickupID
	clock    types.Clock
	emitter  Emitter
	logger   *slog.Logger
	attempts int
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(g CodeGenerator) Option {
	return func(w *Workflow) { w.codes = g }
}

// WithIDFunc replaces the ticket id source.
func WithIDFunc(fn func() id.PickupID) Option {
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

// WithCodeAttempts sets the number of codes tried per Create.
func WithCodeAttempts(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.attempts = n
		}
	}
}

// NewWorkflow returns a Workflow over store.
func NewWorkflow(store Store, opts ...Option) *Workflow {
	w := &Workflow{
		store:    store,
		codes:    RandomCodes{},
		newID:    id.NewPickupID,
		clock:    types.SystemClock{},
		logger:   slog.Default(),
		attempts: DefaultCodeAttempts,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create opens a pending ticket with a fresh unique code. Callers confirm
// the stock before or while creating the ticket.
func (w *Workflow) Create(ctx context.Context, orderID string, locationID id.LocationID, lines []Line) (*Ticket, error) {
	if orderID == "" || locationID.IsNil() {
		return nil, fmt.Errorf("pickup: create: order and location are required")
	}

	now := w.clock.Now()
	t := &Ticket{
		Entity:     types.NewEntity(now),
		ID:         w.newID(),
		OrderID:    orderID,
		LocationID: locationID,
		State:      StatePending,
		Lines:      lines,
		Version:    1,
	}

	for attempt := 1; attempt <= w.attempts; attempt++ {
		code, err := w.codes.NewCode()
		if err != nil {
			return nil, fmt.Errorf("pickup: generate code: %w", err)
		}
		if !ValidCode(code) {
			return nil, fmt.Errorf("pickup: generator produced malformed code %q", code)
		}

		if _, err := w.store.GetPickupByCode(ctx, code); err == nil {
			w.logger.Debug("pickup code collision", "attempt", attempt)
			continue
		} else if !errors.Is(err, ErrTicketNotFound) {
			return nil, err
		}

		t.Code = code
		err = w.store.CreatePickup(ctx, t)
		if errors.Is(err, ErrCodeTaken) {
			w.logger.Debug("pickup code taken on insert", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		w.emit(ctx, t, "")
		return t, nil
	}
	return nil, ErrCodeExhausted
}

// MarkReady moves a pending ticket to ready.
func (w *Workflow) MarkReady(ctx context.Context, ticketID id.PickupID) (*Ticket, error) {
	return w.transition(ctx, ticketID, func(t *Ticket) error {
		if t.State != StatePending {
			return types.InvalidTransition("pickup", t.State, StateReady)
		}
		now := w.clock.Now().UTC()
		t.State = StateReady
		t.ReadyAt = &now
		return nil
	})
}

// Complete hands the goods over. The code is checked before the state, so
// a wrong code never reveals whether the ticket is ready.
func (w *Workflow) Complete(ctx context.Context, ticketID id.PickupID, code string) (*Ticket, error) {
	return w.transition(ctx, ticketID, func(t *Ticket) error {
		if subtle.ConstantTimeCompare([]byte(code), []byte(t.Code)) != 1 {
			return ErrInvalidCode
		}
		if t.State != StateReady {
			return ErrNotReady
		}
		now := w.clock.Now().UTC()
		t.State = StatePickedUp
		t.PickedUpAt = &now
		return nil
	})
}

// Cancel cancels a pending or ready ticket.
func (w *Workflow) Cancel(ctx context.Context, ticketID id.PickupID, reason string) (*Ticket, error) {
	return w.transition(ctx, ticketID, func(t *Ticket) error {
		switch t.State {
		case StatePickedUp:
			return ErrAlreadyPickedUp
		case StateCancelled:
			return types.InvalidTransition("pickup", t.State, StateCancelled)
		}
		now := w.clock.Now().UTC()
		t.State = StateCancelled
		t.CancelledAt = &now
		t.CancelReason = reason
		return nil
	})
}

// Get returns a ticket.
func (w *Workflow) Get(ctx context.Context, ticketID id.PickupID) (*Ticket, error) {
	return w.store.GetPickup(ctx, ticketID)
}

// List returns tickets matching opts.
func (w *Workflow) List(ctx context.Context, opts ListOpts) ([]*Ticket, error) {
	return w.store.ListPickups(ctx, opts)
}

func (w *Workflow) transition(ctx context.Context, ticketID id.PickupID, apply func(*Ticket) error) (*Ticket, error) {
	t, err := w.store.GetPickup(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	from := t.State
	if err := apply(t); err != nil {
		w.logger.Debug("pickup transition rejected",
			"ticket_id", ticketID.String(),
			"state", string(from),
			"error", err,
		)
		return nil, err
	}
	t.Touch(w.clock.Now())
	if err := w.store.UpdatePickup(ctx, t); err != nil {
		return nil, err
	}
	w.emit(ctx, t, from)
	return t, nil
}

func (w *Workflow) emit(ctx context.Context, t *Ticket, from State) {
	if w.emitter != nil {
		w.emitter.EmitPickupTransition(ctx, t, from)
	}
}
