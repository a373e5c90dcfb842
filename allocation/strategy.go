// Package allocation splits a required quantity of one variant across
// ranked locations. Every strategy orders the options its own way and then
// fills greedily, never taking more than an option's available units and
// never more than required in total. What cannot be filled is reported as
// Unmet.
package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/scoring"
	"github.com/xraph/allot/types"
)

var (
	ErrMissingCustomerLocation = errors.New("allocation: customer coordinates required")
	ErrUnknownStrategy         = errors.New("allocation: unknown strategy")
	ErrNoCostOracle            = errors.New("allocation: cost oracle not configured")
)

// Strategy names.
const (
	NameRanked        = "ranked"
	NameNearest       = "nearest"
	NameHighestStock  = "highest_stock"
	NameCostOptimized = "cost_optimized"
)

// Option is one location a strategy may draw from.
type Option struct {
	Location      *location.Location
	Available     int64
	Backorderable bool
	// Score is the scoring engine result; options arrive in ranked order.
	Score int
}

// Request asks for Required units of VariantID.
type Request struct {
	VariantID string
	Required  int64
	Options   []Option
	Customer  *types.Coordinates
	// Weight is the unit weight from the catalog.
	Weight decimal.Decimal
}

// Allocation takes Quantity units from one location.
type Allocation struct {
	VariantID     string           `json:"variant_id"`
	LocationID    id.LocationID    `json:"location_id"`
	Quantity      int64            `json:"quantity"`
	UnitCost      *decimal.Decimal `json:"unit_cost,omitempty"`
	EstimatedDays *int             `json:"estimated_days,omitempty"`
}

// Plan is a strategy's answer for one variant.
type Plan struct {
	VariantID   string       `json:"variant_id"`
	Strategy    string       `json:"strategy"`
	Allocations []Allocation `json:"allocations"`
	Unmet       int64        `json:"unmet_quantity"`
}

// Allocated is the total quantity across allocations.
func (p *Plan) Allocated() int64 {
	var total int64
	for _, a := range p.Allocations {
		total += a.Quantity
	}
	return total
}

// Strategy decides how to split a request.
type Strategy interface {
	Name() string
	Allocate(ctx context.Context, req Request) (*Plan, error)
}

// ByName returns a built-in strategy. oracle is only needed for
// cost_optimized.
func ByName(name string, oracle CostOracle) (Strategy, error) {
	switch name {
	case "", NameRanked:
		return Ranked{}, nil
	case NameNearest:
		return Nearest{}, nil
	case NameHighestStock:
		return HighestStock{}, nil
	case NameCostOptimized:
		if oracle == nil {
			return nil, ErrNoCostOracle
		}
		return CostOptimized{Oracle: oracle}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// fill walks options in order taking what each can give. decorate, when
// set, fills per-allocation extras for the option at index i.
func fill(name string, req Request, options []Option, decorate func(i int, a *Allocation)) *Plan {
	plan := &Plan{VariantID: req.VariantID, Strategy: name}
	remaining := req.Required
	for i, opt := range options {
		if remaining <= 0 {
			break
		}
		take := min(opt.Available, remaining)
		if take <= 0 {
			continue
		}
		a := Allocation{VariantID: req.VariantID, LocationID: opt.Location.ID, Quantity: take}
		if decorate != nil {
			decorate(i, &a)
		}
		plan.Allocations = append(plan.Allocations, a)
		remaining -= take
	}
	plan.Unmet = max(remaining, 0)
	return plan
}

// Decision records how one variant of an order was allocated: the ranking
// the scoring engine produced and the plan the strategy chose.
type Decision struct {
	VariantID string           `json:"variant_id"`
	Requested int64            `json:"requested"`
	Ranking   []scoring.Ranked `json:"ranking"`
	Plan      *Plan            `json:"plan"`
}
