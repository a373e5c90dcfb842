package allot

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/transfer"
)

// Stock reasons recorded by pickup compensation.
const (
	reasonPickupCancelled = "pickup-cancelled"
	reasonPickupReverted  = "pickup-reverted"
)

// ──────────────────────────────────────────────────
// Pickups
// ──────────────────────────────────────────────────

// CreatePickup opens a pickup ticket for an order at an in-store location.
// Reservations the order still holds at that location are confirmed first,
// so the ticket's lines are the units shipped into the customer's hands.
func (e *Engine) CreatePickup(ctx context.Context, orderID string, locationID id.LocationID) (*pickup.Ticket, error) {
	loc, err := e.store.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !loc.Active || !loc.Capabilities.CanFulfillInStore {
		return nil, fmt.Errorf("%w: %s", ErrLocationCannotPickup, locationID)
	}

	held, err := e.ledger.Reservations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	hasHere := false
	for _, r := range held {
		if r.LocationID.String() == locationID.String() {
			hasHere = true
			break
		}
	}

	var shipped []stock.Reservation
	if hasHere {
		shipped, err = e.confirm(ctx, orderID, func(r stock.Reservation) bool {
			return r.LocationID.String() == locationID.String()
		})
		if err != nil {
			e.unconfirm(ctx, orderID, shipped)
			return nil, err
		}
	}

	lines := make([]pickup.Line, 0, len(shipped))
	for _, r := range shipped {
		lines = append(lines, pickup.Line{VariantID: r.VariantID, Quantity: r.Quantity})
	}

	t, err := e.pickups.Create(ctx, orderID, locationID, lines)
	if err != nil {
		e.unconfirm(ctx, orderID, shipped)
		return nil, err
	}
	e.logger.Debug("pickup created",
		"ticket_id", t.ID.String(),
		"order_id", orderID,
		"location_id", locationID.String(),
	)
	return t, nil
}

// unconfirm puts shipped units back on hand and re-reserves them for the
// order.
func (e *Engine) unconfirm(ctx context.Context, orderID string, shipped []stock.Reservation) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range shipped {
		key := stock.Key{VariantID: r.VariantID, LocationID: r.LocationID}
		if _, err := e.ledger.Adjust(ctx, key, r.Quantity, reasonPickupReverted); err != nil {
			e.logger.Error("pickup compensation failed", "order_id", orderID, "key", key.String(), "error", err)
			continue
		}
		if _, err := e.ledger.Reserve(ctx, key, orderID, r.Quantity); err != nil {
			e.logger.Error("pickup compensation failed", "order_id", orderID, "key", key.String(), "error", err)
		}
	}
}

// MarkPickupReady marks a ticket ready for collection.
func (e *Engine) MarkPickupReady(ctx context.Context, ticketID id.PickupID) (*pickup.Ticket, error) {
	return e.pickups.MarkReady(ctx, ticketID)
}

// CompletePickup hands the goods over when code matches.
func (e *Engine) CompletePickup(ctx context.Context, ticketID id.PickupID, code string) (*pickup.Ticket, error) {
	return e.pickups.Complete(ctx, ticketID, code)
}

// CancelPickup cancels a ticket and returns its units to the location's
// on-hand stock.
func (e *Engine) CancelPickup(ctx context.Context, ticketID id.PickupID, reason string) (*pickup.Ticket, error) {
	t, err := e.pickups.Cancel(ctx, ticketID, reason)
	if err != nil {
		return nil, err
	}
	var errs MultiError
	for _, line := range t.Lines {
		key := stock.Key{VariantID: line.VariantID, LocationID: t.LocationID}
		if _, err := e.ledger.Adjust(ctx, key, line.Quantity, reasonPickupCancelled); err != nil {
			errs.Add(err)
		}
	}
	if errs.HasErrors() {
		e.logger.Error("pickup cancellation restock failed",
			"ticket_id", t.ID.String(),
			"error", errs,
		)
		return t, errs
	}
	return t, nil
}

// GetPickup retrieves a ticket.
func (e *Engine) GetPickup(ctx context.Context, ticketID id.PickupID) (*pickup.Ticket, error) {
	return e.pickups.Get(ctx, ticketID)
}

// ListPickups lists tickets.
func (e *Engine) ListPickups(ctx context.Context, opts pickup.ListOpts) ([]*pickup.Ticket, error) {
	return e.pickups.List(ctx, opts)
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

// CreateTransfer records a pending transfer between two known locations.
// The destination must be able to receive shipments.
func (e *Engine) CreateTransfer(ctx context.Context, source, destination id.LocationID, lines []transfer.Line, receiveBy *time.Time) (*transfer.Order, error) {
	if _, err := e.store.GetLocation(ctx, source); err != nil {
		return nil, err
	}
	dest, err := e.store.GetLocation(ctx, destination)
	if err != nil {
		return nil, err
	}
	if !dest.Capabilities.CanReceiveShipments {
		return nil, ValidationError{Field: "destination", Message: "location cannot receive shipments"}
	}
	return e.transfers.Create(ctx, source, destination, lines, receiveBy)
}

// InitiateTransfer deducts the lines from the source and ships the order.
func (e *Engine) InitiateTransfer(ctx context.Context, transferID id.TransferID) (*transfer.Order, error) {
	return e.transfers.Initiate(ctx, transferID)
}

// ReceiveTransfer books received quantities into the destination. A nil
// map receives everything.
func (e *Engine) ReceiveTransfer(ctx context.Context, transferID id.TransferID, received map[string]int64) (*transfer.Order, error) {
	return e.transfers.Receive(ctx, transferID, received)
}

// CancelTransfer cancels a transfer, returning in-transit stock to the
// source.
func (e *Engine) CancelTransfer(ctx context.Context, transferID id.TransferID) (*transfer.Order, error) {
	return e.transfers.Cancel(ctx, transferID)
}

// GetTransfer retrieves a transfer order.
func (e *Engine) GetTransfer(ctx context.Context, transferID id.TransferID) (*transfer.Order, error) {
	return e.transfers.Get(ctx, transferID)
}

// ListTransfers lists transfer orders.
func (e *Engine) ListTransfers(ctx context.Context, opts transfer.ListOpts) ([]*transfer.Order, error) {
	return e.transfers.List(ctx, opts)
}
