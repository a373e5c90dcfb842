// Package demand describes a fulfillment request: what is being asked for,
// by which channel, from where, and for whom.
package demand

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/allot/types"
)

// OrderType is the sales channel a demand arrives through.
type OrderType string

const (
	OrderOnline          OrderType = "ONLINE"
	OrderInstorePickup   OrderType = "INSTORE_PICKUP"
	OrderInstorePurchase OrderType = "INSTORE_PURCHASE"
	OrderDropship        OrderType = "DROPSHIP"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderOnline, OrderInstorePickup, OrderInstorePurchase, OrderDropship:
		return true
	}
	return false
}

// ErrInvalidContext is returned by Context.Validate.
var ErrInvalidContext = errors.New("demand: invalid fulfillment context")

// Item is one requested line: an opaque catalog variant and a quantity.
type Item struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
}

// Context is the per-request fulfillment context. It is never persisted.
type Context struct {
	StoreID   string             `json:"store_id,omitempty"`
	OrderType OrderType          `json:"order_type"`
	Customer  *types.Coordinates `json:"customer_coordinates,omitempty"`
	Items     []Item             `json:"items"`
	OrderDate time.Time          `json:"order_date"`
}

// HasStore reports whether the demand originates from a specific store.
func (c *Context) HasStore() bool {
	return c.StoreID != ""
}

// Validate checks the order type and every item. Quantity problems are
// reported separately by callers so they map onto the stock error taxonomy.
func (c *Context) Validate() error {
	if !c.OrderType.Valid() {
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidContext, c.OrderType)
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidContext)
	}
	for _, item := range c.Items {
		if item.VariantID == "" {
			return fmt.Errorf("%w: item without variant", ErrInvalidContext)
		}
	}
	if c.Customer != nil && !c.Customer.Valid() {
		return fmt.Errorf("%w: customer coordinates out of range", ErrInvalidContext)
	}
	return nil
}

// Merged returns the items with duplicate variants summed, preserving the
// order in which each variant first appeared.
func (c *Context) Merged() []Item {
	index := make(map[string]int, len(c.Items))
	merged := make([]Item, 0, len(c.Items))
	for _, item := range c.Items {
		if i, ok := index[item.VariantID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.VariantID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// Requested returns the total quantity requested for a variant.
func (c *Context) Requested(variantID string) int64 {
	var total int64
	for _, item := range c.Items {
		if item.VariantID == variantID {
			total += item.Quantity
		}
	}
	return total
}
