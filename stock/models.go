// Package stock is the reservation ledger. A Record tracks on-hand units of
// one variant at one location together with the per-demand reservations
// held against them.
package stock

import (
	"fmt"
	"maps"
	"time"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/types"
)

// Key addresses one stock record.
type Key struct {
	VariantID  string        `json:"variant_id"`
	LocationID id.LocationID `json:"location_id"`
}

// String renders the key as "variant@location".
func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.VariantID, k.LocationID)
}

// Record is the stock of one variant at one location.
//
// Every value in Reservations is positive; entries that reach zero are
// removed. Reserved never exceeds OnHand.
type Record struct {
	types.Entity
	VariantID     string           `json:"variant_id"`
	LocationID    id.LocationID    `json:"location_id"`
	OnHand        int64            `json:"quantity_on_hand"`
	Reservations  map[string]int64 `json:"reservations"`
	Backorderable bool             `json:"backorderable"`
	Version       int64            `json:"version"`
}

// Key returns the record's key.
func (r *Record) Key() Key {
	return Key{VariantID: r.VariantID, LocationID: r.LocationID}
}

// Reserved is the sum of all reservations.
func (r *Record) Reserved() int64 {
	var total int64
	for _, q := range r.Reservations {
		total += q
	}
	return total
}

// Available is OnHand minus Reserved.
func (r *Record) Available() int64 {
	return r.OnHand - r.Reserved()
}

// ReservedFor returns the quantity reserved for a demand, or zero.
func (r *Record) ReservedFor(demandID string) int64 {
	return r.Reservations[demandID]
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Reservations = maps.Clone(r.Reservations)
	if c.Reservations == nil {
		c.Reservations = make(map[string]int64)
	}
	return &c
}

// Check verifies the record invariants.
func (r *Record) Check() error {
	for d, q := range r.Reservations {
		if q <= 0 {
			return fmt.Errorf("stock: %s: reservation for %q is %d", r.Key(), d, q)
		}
	}
	if reserved := r.Reserved(); r.OnHand < 0 || reserved > r.OnHand {
		return fmt.Errorf("stock: %s: reserved %d, on hand %d", r.Key(), reserved, r.OnHand)
	}
	return nil
}

// MovementKind names a ledger transition.
type MovementKind string

const (
	MovementReserved MovementKind = "reserved"
	MovementReleased MovementKind = "released"
	MovementShipped  MovementKind = "shipped"
	MovementAdjusted MovementKind = "adjusted"
)

// Movement is one entry of a record's history. Quantity is the signed change
// to the bucket the kind affects: the reservation for reserved, released and
// shipped, on-hand for adjusted.
type Movement struct {
	ID            id.MovementID `json:"id"`
	VariantID     string        `json:"variant_id"`
	LocationID    id.LocationID `json:"location_id"`
	Kind          MovementKind  `json:"kind"`
	DemandID      string        `json:"demand_id,omitempty"`
	Quantity      int64         `json:"quantity"`
	Reason        string        `json:"reason,omitempty"`
	OnHandAfter   int64         `json:"on_hand_after"`
	ReservedAfter int64         `json:"reserved_after"`
	At            time.Time     `json:"at"`
}

// Reservation is a flattened view of one demand's hold on one record.
type Reservation struct {
	DemandID   string        `json:"demand_id"`
	VariantID  string        `json:"variant_id"`
	LocationID id.LocationID `json:"location_id"`
	Quantity   int64         `json:"quantity"`
}

// ListOpts filters ListStockRecords. Zero fields match everything.
type ListOpts struct {
	VariantID  string
	LocationID id.LocationID
	DemandID   string
}

// Matches reports whether r passes the filter.
func (o ListOpts) Matches(r *Record) bool {
	if o.VariantID != "" && r.VariantID != o.VariantID {
		return false
	}
	if !o.LocationID.IsNil() && r.LocationID.String() != o.LocationID.String() {
		return false
	}
	if o.DemandID != "" && r.Reservations[o.DemandID] == 0 {
		return false
	}
	return true
}
