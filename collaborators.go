package allot

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/id"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/types"
)

// Variant is what the engine needs to know about a catalog variant.
type Variant struct {
	ID     string          `json:"id"`
	SKU    string          `json:"sku"`
	Weight decimal.Decimal `json:"weight"`
}

// Catalog resolves opaque variant ids. The engine only reads from it.
type Catalog interface {
	ResolveVariant(ctx context.Context, variantID string) (*Variant, error)
}

// CatalogFunc adapts a function to Catalog.
type CatalogFunc func(ctx context.Context, variantID string) (*Variant, error)

// ResolveVariant implements Catalog.
func (f CatalogFunc) ResolveVariant(ctx context.Context, variantID string) (*Variant, error) {
	return f(ctx, variantID)
}

// CostOracle prices shipping; see allocation.CostOracle.
type CostOracle = allocation.CostOracle

// Clock supplies the current time.
type Clock = types.Clock

// IDGenerator supplies ids for new tickets and transfer orders and
// candidate pickup codes. Code uniqueness is enforced by the engine through
// check-and-retry against the store.
type IDGenerator interface {
	NewPickupID() id.PickupID
	NewTransferID() id.TransferID
	NewPickupCode() (string, error)
}

// DefaultIDGenerator issues TypeIDs and random codes.
type DefaultIDGenerator struct{}

var _ IDGenerator = DefaultIDGenerator{}

func (DefaultIDGenerator) NewPickupID() id.PickupID     { return id.NewPickupID() }
func (DefaultIDGenerator) NewTransferID() id.TransferID { return id.NewTransferID() }
func (DefaultIDGenerator) NewPickupCode() (string, error) {
	return pickup.RandomCodes{}.NewCode()
}

// Policy selects how Fulfill allocates. The zero value uses the engine's
// default strategy and refuses partial fulfillment.
type Policy struct {
	// Strategy names an allocation strategy; empty means the default.
	Strategy string `json:"strategy,omitempty"`
	// AllowPartial reserves what is available and reports the rest as
	// shortfalls instead of failing the order.
	AllowPartial bool `json:"allow_partial,omitempty"`
}
