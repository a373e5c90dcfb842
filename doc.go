// Package allot is an inventory allocation engine for Go applications.
//
// Given a demand (an order's line items) Allot reserves stock across a set
// of candidate fulfillment locations, later confirms or releases those
// reservations, and drives the in-store pickup and inter-location transfer
// workflows that consume stock. Location choice is made by a pluggable,
// auditable scoring policy rather than a single "default location" flag.
//
// Allot is a library, not a service. It provides:
//
//   - A reservation ledger that never oversells, atomic per stock record
//   - A rules-based scorer with a per-rule breakdown for every selection
//   - Ranked, nearest, highest-stock and cost-optimized allocation strategies
//   - Two-phase reserve then confirm, with full rollback on failure
//   - Pickup tickets with unique six-character codes
//   - Multi-line transfer orders with compensating stock adjustments
//   - Memory, PostgreSQL, SQLite and MongoDB stores
//   - Plugin hooks, audit trail and metrics, plus a Forge extension
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/allot"
//	    "github.com/xraph/allot/store/postgres"
//	)
//
//	store, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := allot.New(store)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// Locations say what they can do, and store links say which locations a
// store prefers:
//
//	wh := &location.Location{
//	    Name:   "East DC",
//	    Type:   location.TypeWarehouse,
//	    Active: true,
//	    Capabilities: location.Capabilities{CanFulfillOnline: true},
//	}
//	err := engine.CreateLocation(ctx, wh)
//	_, err = engine.Restock(ctx, "sku-1", wh.ID, 100)
//
// Fulfill reserves an order at checkout:
//
//	res, err := engine.Fulfill(ctx, "order-1", &allot.FulfillmentContext{
//	    OrderType: allot.OrderOnline,
//	    Items:     []allot.Item{{VariantID: "sku-1", Quantity: 2}},
//	}, allot.Policy{Strategy: allot.StrategyNearest})
//
// and payment confirms it:
//
//	_, err = engine.ConfirmShipmentOnPayment(ctx, "order-1")
//
// Every expected business failure is an error value. Use errors.Is with the
// sentinels in this package (ErrInsufficientStock, ErrInvalidCode, ...) and
// errors.As with *stock.QuantityError for the numbers behind a stock error.
package allot
