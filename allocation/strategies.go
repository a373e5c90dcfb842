package allocation

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xraph/allot/location"
	"github.com/xraph/allot/types"
)

// Ranked fills in the order the scoring engine produced.
type Ranked struct{}

func (Ranked) Name() string { return NameRanked }

func (Ranked) Allocate(_ context.Context, req Request) (*Plan, error) {
	return fill(NameRanked, req, req.Options, nil), nil
}

// Nearest fills from the closest location to the customer first. Locations
// without coordinates go last.
type Nearest struct{}

func (Nearest) Name() string { return NameNearest }

func (Nearest) Allocate(_ context.Context, req Request) (*Plan, error) {
	if req.Customer == nil {
		return nil, ErrMissingCustomerLocation
	}
	customer := *req.Customer
	type ranked struct {
		opt  Option
		km   float64
		know bool
	}
	rs := make([]ranked, len(req.Options))
	for i, opt := range req.Options {
		rs[i].opt = opt
		if c := opt.Location.Coordinates; c != nil {
			rs[i].km = types.DistanceKm(customer, *c)
			rs[i].know = true
		}
	}
	slices.SortStableFunc(rs, func(a, b ranked) int {
		if a.know != b.know {
			if a.know {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.km, b.km)
	})
	ordered := make([]Option, len(rs))
	for i := range rs {
		ordered[i] = rs[i].opt
	}
	return fill(NameNearest, req, ordered, nil), nil
}

// HighestStock fills from the location with the most available units first.
type HighestStock struct{}

func (HighestStock) Name() string { return NameHighestStock }

func (HighestStock) Allocate(_ context.Context, req Request) (*Plan, error) {
	ordered := slices.Clone(req.Options)
	slices.SortStableFunc(ordered, func(a, b Option) int {
		return cmp.Compare(b.Available, a.Available)
	})
	return fill(NameHighestStock, req, ordered, nil), nil
}

// CostOracle prices shipping qty units of the given unit weight from a
// location to the customer.
type CostOracle interface {
	Cost(ctx context.Context, loc *location.Location, customer types.Coordinates, weight decimal.Decimal, qty int64) (decimal.Decimal, error)
}

// DeliveryEstimator is optionally implemented by a CostOracle that can also
// quote transit days.
type DeliveryEstimator interface {
	EstimateDays(ctx context.Context, loc *location.Location, customer types.Coordinates) (int, error)
}

// CostOracleFunc adapts a function to CostOracle.
type CostOracleFunc func(ctx context.Context, loc *location.Location, customer types.Coordinates, weight decimal.Decimal, qty int64) (decimal.Decimal, error)

// Cost implements CostOracle.
func (f CostOracleFunc) Cost(ctx context.Context, loc *location.Location, customer types.Coordinates, weight decimal.Decimal, qty int64) (decimal.Decimal, error) {
	return f(ctx, loc, customer, weight, qty)
}

// CostOptimized fills from the cheapest location per unit first. Each
// location is quoted for the quantity it could supply.
type CostOptimized struct {
	Oracle CostOracle
}

func (CostOptimized) Name() string { return NameCostOptimized }

func (s CostOptimized) Allocate(ctx context.Context, req Request) (*Plan, error) {
	if s.Oracle == nil {
		return nil, ErrNoCostOracle
	}
	if req.Customer == nil {
		return nil, ErrMissingCustomerLocation
	}
	customer := *req.Customer
	estimator, _ := s.Oracle.(DeliveryEstimator)

	type quoted struct {
		opt  Option
		unit decimal.Decimal
		days *int
	}
	qs := make([]quoted, 0, len(req.Options))
	for _, opt := range req.Options {
		qty := min(opt.Available, req.Required)
		if qty <= 0 {
			continue
		}
		total, err := s.Oracle.Cost(ctx, opt.Location, customer, req.Weight, qty)
		if err != nil {
			return nil, fmt.Errorf("allocation: quote %s: %w", opt.Location.ID, err)
		}
		q := quoted{opt: opt, unit: total.Div(decimal.NewFromInt(qty))}
		if estimator != nil {
			days, err := estimator.EstimateDays(ctx, opt.Location, customer)
			if err != nil {
				return nil, fmt.Errorf("allocation: estimate %s: %w", opt.Location.ID, err)
			}
			q.days = &days
		}
		qs = append(qs, q)
	}
	slices.SortStableFunc(qs, func(a, b quoted) int { return a.unit.Cmp(b.unit) })

	ordered := make([]Option, len(qs))
	for i := range qs {
		ordered[i] = qs[i].opt
	}
	return fill(NameCostOptimized, req, ordered, func(i int, a *Allocation) {
		unit := qs[i].unit
		a.UnitCost = &unit
		a.EstimatedDays = qs[i].days
	}), nil
}
