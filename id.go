package allot

import "github.com/xraph/allot/id"

// ID is the primary identifier type for all Allot entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// LocationID identifies a fulfillment location.
type LocationID = id.LocationID

// PickupID identifies a pickup ticket.
type PickupID = id.PickupID

// TransferID identifies a transfer order.
type TransferID = id.TransferID
