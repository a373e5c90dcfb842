// Package plugin provides an extensible plugin system for Allot.
// Plugins hook into stock, allocation and workflow events, and may
// contribute scoring rules and allocation strategies.
package plugin

import (
	"context"

	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/scoring"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/transfer"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *allot.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Stock hooks
// ──────────────────────────────────────────────────

// OnReserved is called after a reservation is created or resized.
type OnReserved interface {
	Plugin
	OnReserved(ctx context.Context, rec *stock.Record, m *stock.Movement) error
}

// OnReleased is called after a reservation is released.
type OnReleased interface {
	Plugin
	OnReleased(ctx context.Context, rec *stock.Record, m *stock.Movement) error
}

// OnShipped is called after a shipment is confirmed.
type OnShipped interface {
	Plugin
	OnShipped(ctx context.Context, rec *stock.Record, m *stock.Movement) error
}

// OnAdjusted is called after on-hand is adjusted.
type OnAdjusted interface {
	Plugin
	OnAdjusted(ctx context.Context, rec *stock.Record, m *stock.Movement) error
}

// OnRestocked is called after a positive adjustment. Backorder fill
// plugins hook in here.
type OnRestocked interface {
	Plugin
	OnRestocked(ctx context.Context, rec *stock.Record, delta int64) error
}

// ──────────────────────────────────────────────────
// Allocation hooks
// ──────────────────────────────────────────────────

// OnAllocated is called after an order's reservations are in place.
type OnAllocated interface {
	Plugin
	OnAllocated(ctx context.Context, orderID string, decisions []allocation.Decision) error
}

// OnAllocationFailed is called when fulfillment fails and has been rolled
// back.
type OnAllocationFailed interface {
	Plugin
	OnAllocationFailed(ctx context.Context, orderID string, err error) error
}

// ──────────────────────────────────────────────────
// Workflow hooks
// ──────────────────────────────────────────────────

// OnPickupTransition is called after a ticket changes state. from is empty
// when the ticket was just created.
type OnPickupTransition interface {
	Plugin
	OnPickupTransition(ctx context.Context, t *pickup.Ticket, from pickup.State) error
}

// OnTransferTransition is called after a transfer order changes state.
type OnTransferTransition interface {
	Plugin
	OnTransferTransition(ctx context.Context, o *transfer.Order, from transfer.State) error
}

// ──────────────────────────────────────────────────
// Contributions
// ──────────────────────────────────────────────────

// ScoringRule contributes rules to the scoring engine.
type ScoringRule interface {
	Plugin
	Rules() []scoring.Rule
}

// AllocationStrategy contributes named allocation strategies.
type AllocationStrategy interface {
	Plugin
	Strategies() []allocation.Strategy
}
