// Package transfer moves stock between locations: pending, in transit,
// received, with cancellation allowed before receipt.
package transfer

import (
	"time"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/types"
)

// State is the lifecycle state of a transfer order.
type State string

const (
	StatePending   State = "pending"
	StateInTransit State = "in_transit"
	StateReceived  State = "received"
	StateCancelled State = "cancelled"
)

// Line is one variant being moved. Received is set on receipt and may be
// lower than Quantity.
type Line struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
	Received  int64  `json:"received"`
}

// Shortfall is the quantity that did not arrive.
func (l Line) Shortfall() int64 {
	return l.Quantity - l.Received
}

// Order is a transfer order. SourceID and DestinationID always differ.
type Order struct {
	types.Entity
	ID                 id.TransferID `json:"id"`
	SourceID           id.LocationID `json:"source_location_id"`
	DestinationID      id.LocationID `json:"destination_location_id"`
	Lines              []Line        `json:"lines"`
	State              State         `json:"state"`
	RequestedReceiveBy *time.Time    `json:"requested_receive_by,omitempty"`
	InitiatedAt        *time.Time    `json:"initiated_at,omitempty"`
	ReceivedAt         *time.Time    `json:"received_at,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	Version            int64         `json:"version"`
}

// Partial reports whether any line arrived short.
func (o *Order) Partial() bool {
	for _, l := range o.Lines {
		if l.Shortfall() > 0 {
			return true
		}
	}
	return false
}

// ListOpts filters ListTransfers.
type ListOpts struct {
	LocationID id.LocationID // matches source or destination
	State      State
	Limit      int
	Offset     int
}

// Matches reports whether o passes the filter (ignoring paging).
func (opts ListOpts) Matches(o *Order) bool {
	if !opts.LocationID.IsNil() {
		loc := opts.LocationID.String()
		if o.SourceID.String() != loc && o.DestinationID.String() != loc {
			return false
		}
	}
	if opts.State != "" && o.State != opts.State {
		return false
	}
	return true
}
