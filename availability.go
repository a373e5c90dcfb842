package allot

import (
	"cmp"
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/allot/demand"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/types"
)

// PickupCandidate is an in-store location holding enough stock.
type PickupCandidate struct {
	Location   *location.Location `json:"location"`
	Available  int64              `json:"available"`
	DistanceKm *float64           `json:"distance_km,omitempty"`
}

// Availability answers CheckAvailability.
type Availability struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
	// OnlineAvailable is set when the online-capable locations together
	// hold at least Quantity units.
	OnlineAvailable bool  `json:"online_available"`
	OnlineQuantity  int64 `json:"online_quantity"`
	// PickupCandidates are nearest first when coordinates were given,
	// otherwise in location priority order.
	PickupCandidates []PickupCandidate `json:"pickup_candidates"`
}

// CheckAvailability reports whether qty units of a variant can ship online
// and which stores could hand them over in person. It reads only.
func (e *Engine) CheckAvailability(ctx context.Context, variantID string, qty int64, near *types.Coordinates) (*Availability, error) {
	ctx, span := e.tracer.Start(ctx, "allot.CheckAvailability", trace.WithAttributes(
		attribute.String("allot.variant_id", variantID),
		attribute.Int64("allot.quantity", qty),
	))
	defer span.End()

	if variantID == "" {
		return nil, ValidationError{Field: "variant_id", Message: "required"}
	}
	if qty <= 0 {
		return nil, stock.InvalidQuantity(0, qty)
	}
	if near != nil && !near.Valid() {
		return nil, ValidationError{Field: "coordinates", Message: "out of range"}
	}

	records, err := e.ledger.List(ctx, stock.ListOpts{VariantID: variantID})
	if err != nil {
		return nil, err
	}
	available := make(map[string]int64, len(records))
	for _, r := range records {
		available[r.LocationID.String()] = r.Available()
	}

	online, err := e.registry.CandidateLocations(ctx, variantID, demand.OrderOnline, "")
	if err != nil {
		return nil, err
	}
	out := &Availability{VariantID: variantID, Quantity: qty}
	for _, l := range online {
		out.OnlineQuantity += available[l.ID.String()]
	}
	out.OnlineAvailable = out.OnlineQuantity >= qty

	stores, err := e.registry.CandidateLocations(ctx, variantID, demand.OrderInstorePickup, "")
	if err != nil {
		return nil, err
	}
	for _, l := range stores {
		avail := available[l.ID.String()]
		if avail < qty {
			continue
		}
		c := PickupCandidate{Location: l, Available: avail}
		if near != nil && l.Coordinates != nil {
			km := types.DistanceKm(*near, *l.Coordinates)
			c.DistanceKm = &km
		}
		out.PickupCandidates = append(out.PickupCandidates, c)
	}
	if near != nil {
		slices.SortStableFunc(out.PickupCandidates, func(a, b PickupCandidate) int {
			switch {
			case a.DistanceKm == nil && b.DistanceKm == nil:
				return 0
			case a.DistanceKm == nil:
				return 1
			case b.DistanceKm == nil:
				return -1
			}
			return cmp.Compare(*a.DistanceKm, *b.DistanceKm)
		})
	}

	span.SetAttributes(
		attribute.Bool("allot.online_available", out.OnlineAvailable),
		attribute.Int("allot.pickup_candidates", len(out.PickupCandidates)),
	)
	return out, nil
}
