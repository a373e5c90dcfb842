package pickup

import (
	"context"
	"errors"

	"github.com/xraph/allot/id"
)

var (
	ErrTicketNotFound  = errors.New("pickup: ticket not found")
	ErrInvalidCode     = errors.New("pickup: invalid pickup code")
	ErrNotReady        = errors.New("pickup: ticket is not ready")
	ErrAlreadyPickedUp = errors.New("pickup: already picked up")
	ErrCodeTaken       = errors.New("pickup: code already in use")
	ErrCodeExhausted   = errors.New("pickup: could not allocate a unique code")
	ErrConflict        = errors.New("pickup: concurrent modification")
)

// Store persists tickets.
//
// CreatePickup must reject a duplicate code with ErrCodeTaken. UpdatePickup
// succeeds only when the stored version equals t.Version; it then stores
// and sets t.Version+1, or returns ErrConflict.
type Store interface {
	CreatePickup(ctx context.Context, t *Ticket) error
	GetPickup(ctx context.Context, ticketID id.PickupID) (*Ticket, error)
	GetPickupByCode(ctx context.Context, code string) (*Ticket, error)
	UpdatePickup(ctx context.Context, t *Ticket) error
	ListPickups(ctx context.Context, opts ListOpts) ([]*Ticket, error)
}
