// Package pickup runs the in-store pickup ticket state machine:
// pending, ready, picked up, with cancellation allowed before pickup.
package pickup

import (
	"time"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/types"
)

// State is the lifecycle state of a ticket.
type State string

const (
	StatePending   State = "pending"
	StateReady     State = "ready"
	StatePickedUp  State = "picked_up"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StatePickedUp || s == StateCancelled
}

// Line is one variant held for the customer.
type Line struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
}

// Ticket is a pickup ticket. Code is unique across all tickets.
type Ticket struct {
	types.Entity
	ID           id.PickupID   `json:"id"`
	OrderID      string        `json:"order_id"`
	LocationID   id.LocationID `json:"location_id"`
	State        State         `json:"state"`
	Code         string        `json:"pickup_code"`
	Lines        []Line        `json:"lines,omitempty"`
	ReadyAt      *time.Time    `json:"ready_at,omitempty"`
	PickedUpAt   *time.Time    `json:"picked_up_at,omitempty"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason string        `json:"cancel_reason,omitempty"`
	Version      int64         `json:"version"`
}

// ListOpts filters ListPickups.
type ListOpts struct {
	OrderID    string
	LocationID id.LocationID
	State      State
	Limit      int
	Offset     int
}

// Matches reports whether t passes the filter (ignoring paging).
func (o ListOpts) Matches(t *Ticket) bool {
	if o.OrderID != "" && t.OrderID != o.OrderID {
		return false
	}
	if !o.LocationID.IsNil() && t.LocationID.String() != o.LocationID.String() {
		return false
	}
	if o.State != "" && t.State != o.State {
		return false
	}
	return true
}
