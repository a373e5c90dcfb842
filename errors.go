package allot

import (
	"errors"
	"fmt"

	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/transfer"
	"github.com/xraph/allot/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("allot: not found")
	ErrInvalidInput = errors.New("allot: invalid input")

	// Fulfillment errors
	ErrNoCandidateLocations = errors.New("allot: no candidate locations")
	ErrLocationCannotPickup = errors.New("allot: location cannot fulfill in store")
	ErrNothingToConfirm     = errors.New("allot: no reservation to confirm")

	// Stock errors
	ErrInvalidQuantity       = stock.ErrInvalidQuantity
	ErrInsufficientStock     = stock.ErrInsufficientStock
	ErrInvalidRelease        = stock.ErrInvalidRelease
	ErrInvalidShipment       = stock.ErrInvalidShipment
	ErrReservedExceedsOnHand = stock.ErrReservedExceedsOnHand
	ErrStockRecordNotFound   = stock.ErrRecordNotFound
	ErrStockConflict         = stock.ErrConflict

	// Location errors
	ErrLocationNotFound = location.ErrLocationNotFound

	// Allocation errors
	ErrMissingCustomerLocation = allocation.ErrMissingCustomerLocation
	ErrUnknownStrategy         = allocation.ErrUnknownStrategy

	// Workflow errors
	ErrInvalidStateTransition = types.ErrInvalidStateTransition
	ErrInvalidCode            = pickup.ErrInvalidCode
	ErrNotReady               = pickup.ErrNotReady
	ErrAlreadyPickedUp        = pickup.ErrAlreadyPickedUp
	ErrTicketNotFound         = pickup.ErrTicketNotFound
	ErrTransferNotFound       = transfer.ErrOrderNotFound
	ErrSameLocation           = transfer.ErrSameLocation
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("allot: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "allot: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("allot: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// RollbackError reports a failure whose compensating releases did not all
// succeed. Cause is the original failure.
type RollbackError struct {
	OrderID  string
	Cause    error
	Rollback MultiError
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("allot: order %s: %v (rollback incomplete: %v)", e.OrderID, e.Cause, e.Rollback)
}

func (e *RollbackError) Unwrap() error { return e.Cause }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrLocationNotFound) ||
		errors.Is(err, ErrStockRecordNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrTransferNotFound)
}

// IsStockError returns true if the error is a stock quantity failure.
func IsStockError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidRelease) ||
		errors.Is(err, ErrInvalidShipment) ||
		errors.Is(err, ErrReservedExceedsOnHand)
}

// IsWorkflowError returns true if the error is a pickup or transfer guard.
func IsWorkflowError(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrAlreadyPickedUp)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStockConflict) ||
		errors.Is(err, pickup.ErrConflict) ||
		errors.Is(err, transfer.ErrConflict)
}
