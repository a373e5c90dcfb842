package stock

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity       = errors.New("stock: invalid quantity")
	ErrInsufficientStock     = errors.New("stock: insufficient stock")
	ErrInvalidRelease        = errors.New("stock: release exceeds reservation")
	ErrInvalidShipment       = errors.New("stock: shipment exceeds reservation")
	ErrReservedExceedsOnHand = errors.New("stock: reserved would exceed on hand")
	ErrInvalidDemand         = errors.New("stock: demand id required")

	ErrRecordNotFound = errors.New("stock: record not found")
	ErrRecordExists   = errors.New("stock: record already exists")
	// ErrConflict reports that a concurrent writer won and the caller may retry.
	ErrConflict = errors.New("stock: concurrent modification")
)

// QuantityError carries the numbers behind a quantity failure. Kind is one
// of the sentinels above and is matched by errors.Is.
type QuantityError struct {
	Kind      error
	Available int64
	Requested int64
}

func (e *QuantityError) Error() string {
	switch e.Kind {
	case ErrInvalidRelease, ErrInvalidShipment:
		return fmt.Sprintf("%v (reserved %d, requested %d)", e.Kind, e.Available, e.Requested)
	case ErrReservedExceedsOnHand:
		return fmt.Sprintf("%v (on hand %d, reserved %d)", e.Kind, e.Available, e.Requested)
	default:
		return fmt.Sprintf("%v (available %d, requested %d)", e.Kind, e.Available, e.Requested)
	}
}

func (e *QuantityError) Unwrap() error { return e.Kind }

// InsufficientStock builds an ErrInsufficientStock error.
func InsufficientStock(available, requested int64) error {
	return &QuantityError{Kind: ErrInsufficientStock, Available: available, Requested: requested}
}

// InvalidRelease builds an ErrInvalidRelease error.
func InvalidRelease(reserved, requested int64) error {
	return &QuantityError{Kind: ErrInvalidRelease, Available: reserved, Requested: requested}
}

// InvalidShipment builds an ErrInvalidShipment error.
func InvalidShipment(reserved, requested int64) error {
	return &QuantityError{Kind: ErrInvalidShipment, Available: reserved, Requested: requested}
}

// InvalidQuantity builds an ErrInvalidQuantity error.
func InvalidQuantity(available, requested int64) error {
	return &QuantityError{Kind: ErrInvalidQuantity, Available: available, Requested: requested}
}

// ReservedExceedsOnHand builds an ErrReservedExceedsOnHand error.
func ReservedExceedsOnHand(onHand, reserved int64) error {
	return &QuantityError{Kind: ErrReservedExceedsOnHand, Available: onHand, Requested: reserved}
}

// IsBusinessError reports whether err belongs to the quantity taxonomy as
// opposed to a lookup or infrastructure failure.
func IsBusinessError(err error) bool {
	var qe *QuantityError
	return errors.As(err, &qe) || errors.Is(err, ErrInvalidDemand)
}
