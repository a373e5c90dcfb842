package allot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/scoring"
	"github.com/xraph/allot/stock"
)

// Shortfall is demand a fulfillment could not cover.
type Shortfall struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
}

// Result is the outcome of Fulfill.
type Result struct {
	OrderID     string                  `json:"order_id"`
	Allocations []allocation.Allocation `json:"allocations"`
	Shortfalls  []Shortfall             `json:"shortfalls,omitempty"`
	// Decisions carry the per-variant ranking with its rule breakdown.
	Decisions []allocation.Decision `json:"decisions"`
}

// Complete reports whether every requested unit was allocated.
func (r *Result) Complete() bool { return len(r.Shortfalls) == 0 }

// Fulfill allocates every item of dc and reserves the allocation under
// orderID. Calling it again for the same order re-plans against the stock
// the order already holds, resizes those reservations in place and releases
// the ones no longer needed. On any reservation failure every change made
// by the call is undone before the error is returned.
func (e *Engine) Fulfill(ctx context.Context, orderID string, dc *demand.Context, policy Policy) (*Result, error) {
	attrs := []attribute.KeyValue{attribute.String("allot.order_id", orderID)}
	if dc != nil {
		attrs = append(attrs,
			attribute.String("allot.order_type", string(dc.OrderType)),
			attribute.Int("allot.items", len(dc.Items)),
		)
	}
	ctx, span := e.tracer.Start(ctx, "allot.Fulfill", trace.WithAttributes(attrs...))
	defer span.End()

	result, err := e.fulfill(ctx, orderID, dc, policy)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.plugins.EmitAllocationFailed(ctx, orderID, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("allot.allocations", len(result.Allocations)))
	e.plugins.EmitAllocated(ctx, orderID, result.Decisions)
	return result, nil
}

// ReserveForCart holds stock for a cart at checkout time. It is Fulfill
// with the default policy.
func (e *Engine) ReserveForCart(ctx context.Context, cartID string, dc *demand.Context) (*Result, error) {
	return e.Fulfill(ctx, cartID, dc, Policy{})
}

// ReleaseForCart drops every reservation the cart holds, for abandonment or
// cancellation. Releasing an empty cart is a no-op.
func (e *Engine) ReleaseForCart(ctx context.Context, cartID string) ([]stock.Reservation, error) {
	held, err := e.ledger.Reservations(ctx, cartID)
	if err != nil {
		return nil, err
	}
	var errs MultiError
	released := make([]stock.Reservation, 0, len(held))
	for _, r := range held {
		key := stock.Key{VariantID: r.VariantID, LocationID: r.LocationID}
		if _, err := e.ledger.Release(ctx, key, cartID); err != nil {
			errs.Add(err)
			continue
		}
		released = append(released, r)
	}
	if errs.HasErrors() {
		return released, errs
	}
	e.logger.Debug("cart released", "cart_id", cartID, "reservations", len(released))
	return released, nil
}

// ConfirmShipmentOnPayment ships every reservation the order holds once
// payment has succeeded.
func (e *Engine) ConfirmShipmentOnPayment(ctx context.Context, orderID string) ([]stock.Reservation, error) {
	return e.confirm(ctx, orderID, func(stock.Reservation) bool { return true })
}

func (e *Engine) confirm(ctx context.Context, orderID string, keep func(stock.Reservation) bool) ([]stock.Reservation, error) {
	held, err := e.ledger.Reservations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var errs MultiError
	shipped := make([]stock.Reservation, 0, len(held))
	for _, r := range held {
		if !keep(r) {
			continue
		}
		key := stock.Key{VariantID: r.VariantID, LocationID: r.LocationID}
		if _, err := e.ledger.ConfirmShipment(ctx, key, orderID, r.Quantity); err != nil {
			errs.Add(err)
			continue
		}
		shipped = append(shipped, r)
	}
	if errs.HasErrors() {
		return shipped, errs
	}
	if len(shipped) == 0 {
		return nil, fmt.Errorf("%w: order %s", ErrNothingToConfirm, orderID)
	}
	return shipped, nil
}

// reservationOp moves one record's reservation for the order from prior to
// target. A zero target releases.
type reservationOp struct {
	key    stock.Key
	prior  int64
	target int64
	done   bool
}

func (e *Engine) fulfill(ctx context.Context, orderID string, dc *demand.Context, policy Policy) (*Result, error) {
	if orderID == "" {
		return nil, ValidationError{Field: "order_id", Message: "required"}
	}
	if dc == nil {
		return nil, ValidationError{Field: "context", Message: "required"}
	}
	if err := dc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	// Lines are checked before merging so a negative line cannot cancel
	// out a positive one for the same variant.
	for _, item := range dc.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("allot: fulfill %s: variant %s: %w", orderID, item.VariantID, stock.InvalidQuantity(0, item.Quantity))
		}
	}
	items := dc.Merged()

	strategy, err := e.strategy(policy.Strategy)
	if err != nil {
		return nil, err
	}

	held, err := e.ledger.Reservations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	prior := make(map[string]int64, len(held))
	for _, r := range held {
		prior[stock.Key{VariantID: r.VariantID, LocationID: r.LocationID}.String()] = r.Quantity
	}

	planned, err := e.plan(ctx, orderID, dc, items, strategy)
	if err != nil {
		return nil, err
	}

	result := &Result{OrderID: orderID, Decisions: planned}
	for _, d := range planned {
		result.Allocations = append(result.Allocations, d.Plan.Allocations...)
		if d.Plan.Unmet > 0 {
			result.Shortfalls = append(result.Shortfalls, Shortfall{VariantID: d.VariantID, Quantity: d.Plan.Unmet})
		}
	}
	if len(result.Shortfalls) > 0 && !policy.AllowPartial {
		s := result.Shortfalls[0]
		requested := dc.Requested(s.VariantID)
		return nil, fmt.Errorf("allot: fulfill %s: variant %s: %w",
			orderID, s.VariantID, stock.InsufficientStock(requested-s.Quantity, requested))
	}

	ops := make([]*reservationOp, 0, len(result.Allocations)+len(prior))
	planKeys := make(map[string]bool, len(result.Allocations))
	for _, a := range result.Allocations {
		key := stock.Key{VariantID: a.VariantID, LocationID: a.LocationID}
		planKeys[key.String()] = true
		ops = append(ops, &reservationOp{key: key, prior: prior[key.String()], target: a.Quantity})
	}
	for _, r := range held {
		key := stock.Key{VariantID: r.VariantID, LocationID: r.LocationID}
		if !planKeys[key.String()] {
			ops = append(ops, &reservationOp{key: key, prior: r.Quantity})
		}
	}

	if err := e.apply(ctx, orderID, ops); err != nil {
		return nil, err
	}

	e.logger.Debug("order fulfilled",
		"order_id", orderID,
		"allocations", len(result.Allocations),
		"shortfalls", len(result.Shortfalls),
	)
	return result, nil
}

// plan ranks and allocates every item without touching the ledger. Stock
// the order already holds counts as available to it.
func (e *Engine) plan(ctx context.Context, orderID string, dc *demand.Context, items []demand.Item, strategy allocation.Strategy) ([]allocation.Decision, error) {
	primary, hasPrimary, err := e.registry.PrimaryLocation(ctx, dc.StoreID)
	if err != nil {
		return nil, err
	}

	// variant -> location -> snapshot, shared by every candidate.
	snapshots := make(map[string]map[string]scoring.Snapshot, len(items))
	for _, item := range items {
		records, listErr := e.ledger.List(ctx, stock.ListOpts{VariantID: item.VariantID})
		if listErr != nil {
			return nil, listErr
		}
		byLoc := make(map[string]scoring.Snapshot, len(records))
		for _, r := range records {
			byLoc[r.LocationID.String()] = scoring.Snapshot{
				Known:         true,
				Available:     r.Available() + r.ReservedFor(orderID),
				Backorderable: r.Backorderable,
			}
		}
		snapshots[item.VariantID] = byLoc
	}

	decisions := make([]allocation.Decision, 0, len(items))
	for _, item := range items {
		locs, err := e.registry.CandidateLocations(ctx, item.VariantID, dc.OrderType, dc.StoreID)
		if err != nil {
			return nil, err
		}
		if len(locs) == 0 {
			return nil, fmt.Errorf("%w: variant %s, order type %s", ErrNoCandidateLocations, item.VariantID, dc.OrderType)
		}

		candidates := make([]*scoring.Candidate, 0, len(locs))
		for _, l := range locs {
			candidates = append(candidates, &scoring.Candidate{
				Location: l,
				Stock:    candidateStock(snapshots, l),
				Primary:  hasPrimary && l.ID.String() == primary.String(),
			})
		}
		ranking := e.scorer.Rank(candidates, dc)

		options := make([]allocation.Option, 0, len(ranking))
		for _, r := range ranking {
			snap := r.Candidate.Stock[item.VariantID]
			if !snap.Known || (snap.Available < 1 && !snap.Backorderable) {
				continue
			}
			options = append(options, allocation.Option{
				Location:      r.Candidate.Location,
				Available:     snap.Available,
				Backorderable: snap.Backorderable,
				Score:         r.Score,
			})
		}

		weight, err := e.weight(ctx, item.VariantID)
		if err != nil {
			return nil, err
		}
		plan, err := strategy.Allocate(ctx, allocation.Request{
			VariantID: item.VariantID,
			Required:  item.Quantity,
			Options:   options,
			Customer:  dc.Customer,
			Weight:    weight,
		})
		if err != nil {
			return nil, fmt.Errorf("allot: allocate %s with %s: %w", item.VariantID, strategy.Name(), err)
		}
		decisions = append(decisions, allocation.Decision{
			VariantID: item.VariantID,
			Requested: item.Quantity,
			Ranking:   ranking,
			Plan:      plan,
		})
	}
	return decisions, nil
}

func candidateStock(snapshots map[string]map[string]scoring.Snapshot, l *location.Location) map[string]scoring.Snapshot {
	out := make(map[string]scoring.Snapshot, len(snapshots))
	for variant, byLoc := range snapshots {
		if snap, ok := byLoc[l.ID.String()]; ok {
			out[variant] = snap
		}
	}
	return out
}

func (e *Engine) weight(ctx context.Context, variantID string) (decimal.Decimal, error) {
	if e.catalog == nil {
		return decimal.Zero, nil
	}
	v, err := e.catalog.ResolveVariant(ctx, variantID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("allot: resolve variant %s: %w", variantID, err)
	}
	return v.Weight, nil
}

// apply runs every op, in parallel when enabled, then waits for all of them.
// If any failed, every op that succeeded is reversed to its prior size.
func (e *Engine) apply(ctx context.Context, orderID string, ops []*reservationOp) error {
	ctx, span := e.tracer.Start(ctx, "allot.reserve", trace.WithAttributes(
		attribute.String("allot.order_id", orderID),
		attribute.Int("allot.ops", len(ops)),
	))
	defer span.End()

	var (
		mu   sync.Mutex
		errs MultiError
	)
	run := func(op *reservationOp) {
		var err error
		if op.target > 0 {
			_, err = e.ledger.Reserve(ctx, op.key, orderID, op.target)
		} else {
			_, err = e.ledger.Release(ctx, op.key, orderID)
		}
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs.Add(err)
			return
		}
		op.done = true
	}

	if e.parallel && len(ops) > 1 {
		var g errgroup.Group
		for _, op := range ops {
			g.Go(func() error {
				run(op)
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // failures are collected per op
	} else {
		for _, op := range ops {
			run(op)
			if errs.HasErrors() {
				break
			}
		}
	}

	if !errs.HasErrors() {
		return nil
	}

	cause := errs.First()
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	rollback := e.rollback(context.WithoutCancel(ctx), orderID, ops)
	if rollback.HasErrors() {
		e.logger.Error("fulfillment rollback incomplete",
			"order_id", orderID,
			"error", rollback,
		)
		return &RollbackError{OrderID: orderID, Cause: cause, Rollback: rollback}
	}
	e.logger.Debug("fulfillment rolled back", "order_id", orderID, "error", cause)
	return fmt.Errorf("allot: fulfill %s: %w", orderID, cause)
}

func (e *Engine) rollback(ctx context.Context, orderID string, ops []*reservationOp) MultiError {
	var errs MultiError
	for _, op := range ops {
		if !op.done || op.prior == op.target {
			continue
		}
		var err error
		if op.prior > 0 {
			_, err = e.ledger.Reserve(ctx, op.key, orderID, op.prior)
		} else {
			_, err = e.ledger.Release(ctx, op.key, orderID)
		}
		if err != nil && !errors.Is(err, stock.ErrRecordNotFound) {
			errs.Add(err)
		}
	}
	return errs
}
