package allot_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/xraph/allot"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/store/memory"
)

// TestDocumentationExamples verifies that the package documentation examples work.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store for the demo; use PostgreSQL in production.
		store := memory.New()

		engine := allot.New(store, allot.WithLogger(slog.Default()))

		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		wh := &location.Location{
			Name:         "East DC",
			Type:         location.TypeWarehouse,
			Active:       true,
			Capabilities: location.Capabilities{CanFulfillOnline: true},
			Coordinates:  &allot.Coordinates{Lat: 40.7128, Lng: -74.0060},
		}
		if err := engine.CreateLocation(ctx, wh); err != nil {
			t.Fatal(err)
		}
		if _, err := engine.Restock(ctx, "sku-1", wh.ID, 100); err != nil {
			t.Fatal(err)
		}

		res, err := engine.Fulfill(ctx, "order-1", &allot.FulfillmentContext{
			OrderType: allot.OrderOnline,
			Customer:  &allot.Coordinates{Lat: 40.73, Lng: -73.99},
			Items:     []allot.Item{{VariantID: "sku-1", Quantity: 2}},
		}, allot.Policy{Strategy: allot.StrategyNearest})
		if err != nil {
			t.Fatal(err)
		}
		if !res.Complete() || len(res.Allocations) != 1 {
			t.Fatalf("unexpected result: %+v", res)
		}

		if _, err := engine.ConfirmShipmentOnPayment(ctx, "order-1"); err != nil {
			t.Fatal(err)
		}

		rec, err := engine.StockRecord(ctx, "sku-1", wh.ID)
		if err != nil {
			t.Fatal(err)
		}
		if rec.OnHand != 98 || rec.Reserved() != 0 {
			t.Errorf("expected 98 on hand and nothing reserved, got %d/%d", rec.OnHand, rec.Reserved())
		}
	})
}
