package transfer

import (
	"context"
	"errors"

	"github.com/xraph/allot/id"
)

var (
	ErrOrderNotFound = errors.New("transfer: order not found")
	ErrSameLocation  = errors.New("transfer: source and destination must differ")
	ErrNoLines       = errors.New("transfer: order has no lines")
	ErrUnknownLine   = errors.New("transfer: variant is not on the order")
	ErrConflict      = errors.New("transfer: concurrent modification")
)

// Store persists transfer orders. UpdateTransfer has the same optimistic
// version contract as pickup.Store.UpdatePickup.
type Store interface {
	CreateTransfer(ctx context.Context, o *Order) error
	GetTransfer(ctx context.Context, transferID id.TransferID) (*Order, error)
	UpdateTransfer(ctx context.Context, o *Order) error
	ListTransfers(ctx context.Context, opts ListOpts) ([]*Order, error)
}
