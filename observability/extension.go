// Package observability provides a metrics extension for Allot that records
// stock, allocation and workflow event counts via an abstract MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/plugin"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/transfer"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnReserved           = (*MetricsExtension)(nil)
	_ plugin.OnReleased           = (*MetricsExtension)(nil)
	_ plugin.OnShipped            = (*MetricsExtension)(nil)
	_ plugin.OnAdjusted           = (*MetricsExtension)(nil)
	_ plugin.OnRestocked          = (*MetricsExtension)(nil)
	_ plugin.OnAllocated          = (*MetricsExtension)(nil)
	_ plugin.OnAllocationFailed   = (*MetricsExtension)(nil)
	_ plugin.OnPickupTransition   = (*MetricsExtension)(nil)
	_ plugin.OnTransferTransition = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an Allot plugin to track inventory metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Stock metrics
	Reservations  Counter
	ReservedUnits Counter
	Releases      Counter
	ReleasedUnits Counter
	Shipments     Counter
	ShippedUnits  Counter
	Adjustments   Counter
	RestockedUnits Counter

	// Allocation metrics
	OrdersAllocated   Counter
	AllocationsFailed Counter
	ShortfallUnits    Counter
	LocationsPerItem  Histogram
	WinningScore      Histogram

	// Pickup metrics
	PickupsCreated   Counter
	PickupsReady     Counter
	PickupsCompleted Counter
	PickupsCancelled Counter

	// Transfer metrics
	TransfersCreated   Counter
	TransfersInitiated Counter
	TransfersReceived  Counter
	TransfersShort     Counter
	TransfersCancelled Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		Reservations:  factory.Counter("allot.stock.reservations"),
		ReservedUnits: factory.Counter("allot.stock.reserved_units"),
		Releases:      factory.Counter("allot.stock.releases"),
		ReleasedUnits: factory.Counter("allot.stock.released_units"),
		Shipments:     factory.Counter("allot.stock.shipments"),
		ShippedUnits:  factory.Counter("allot.stock.shipped_units"),
		Adjustments:   factory.Counter("allot.stock.adjustments"),
		RestockedUnits: factory.Counter("allot.stock.restocked_units"),

		OrdersAllocated:   factory.Counter("allot.allocation.orders"),
		AllocationsFailed: factory.Counter("allot.allocation.failed"),
		ShortfallUnits:    factory.Counter("allot.allocation.shortfall_units"),
		LocationsPerItem:  factory.Histogram("allot.allocation.locations_per_item"),
		WinningScore:      factory.Histogram("allot.allocation.winning_score"),

		PickupsCreated:   factory.Counter("allot.pickup.created"),
		PickupsReady:     factory.Counter("allot.pickup.ready"),
		PickupsCompleted: factory.Counter("allot.pickup.completed"),
		PickupsCancelled: factory.Counter("allot.pickup.cancelled"),

		TransfersCreated:   factory.Counter("allot.transfer.created"),
		TransfersInitiated: factory.Counter("allot.transfer.initiated"),
		TransfersReceived:  factory.Counter("allot.transfer.received"),
		TransfersShort:     factory.Counter("allot.transfer.received_short"),
		TransfersCancelled: factory.Counter("allot.transfer.cancelled"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(context.Context, any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Stock hooks
// ──────────────────────────────────────────────────

// OnReserved implements plugin.OnReserved. Shrinking a reservation counts
// as a reservation change with no added units.
func (m *MetricsExtension) OnReserved(_ context.Context, _ *stock.Record, mv *stock.Movement) error {
	m.Reservations.Inc()
	if mv.Quantity > 0 {
		m.ReservedUnits.Add(float64(mv.Quantity))
	}
	return nil
}

// OnReleased implements plugin.OnReleased.
func (m *MetricsExtension) OnReleased(_ context.Context, _ *stock.Record, mv *stock.Movement) error {
	m.Releases.Inc()
	m.ReleasedUnits.Add(float64(abs(mv.Quantity)))
	return nil
}

// OnShipped implements plugin.OnShipped.
func (m *MetricsExtension) OnShipped(_ context.Context, _ *stock.Record, mv *stock.Movement) error {
	m.Shipments.Inc()
	m.ShippedUnits.Add(float64(abs(mv.Quantity)))
	return nil
}

// OnAdjusted implements plugin.OnAdjusted.
func (m *MetricsExtension) OnAdjusted(context.Context, *stock.Record, *stock.Movement) error {
	m.Adjustments.Inc()
	return nil
}

// OnRestocked implements plugin.OnRestocked.
func (m *MetricsExtension) OnRestocked(_ context.Context, _ *stock.Record, delta int64) error {
	m.RestockedUnits.Add(float64(delta))
	return nil
}

// ──────────────────────────────────────────────────
// Allocation hooks
// ──────────────────────────────────────────────────

// OnAllocated implements plugin.OnAllocated.
func (m *MetricsExtension) OnAllocated(_ context.Context, _ string, decisions []allocation.Decision) error {
	m.OrdersAllocated.Inc()
	for _, d := range decisions {
		if len(d.Ranking) > 0 {
			m.WinningScore.Observe(float64(d.Ranking[0].Score))
		}
		if d.Plan == nil {
			continue
		}
		m.LocationsPerItem.Observe(float64(len(d.Plan.Allocations)))
		if d.Plan.Unmet > 0 {
			m.ShortfallUnits.Add(float64(d.Plan.Unmet))
		}
	}
	return nil
}

// OnAllocationFailed implements plugin.OnAllocationFailed.
func (m *MetricsExtension) OnAllocationFailed(context.Context, string, error) error {
	m.AllocationsFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Workflow hooks
// ──────────────────────────────────────────────────

// OnPickupTransition implements plugin.OnPickupTransition.
func (m *MetricsExtension) OnPickupTransition(_ context.Context, t *pickup.Ticket, _ pickup.State) error {
	switch t.State {
	case pickup.StatePending:
		m.PickupsCreated.Inc()
	case pickup.StateReady:
		m.PickupsReady.Inc()
	case pickup.StatePickedUp:
		m.PickupsCompleted.Inc()
	case pickup.StateCancelled:
		m.PickupsCancelled.Inc()
	}
	return nil
}

// OnTransferTransition implements plugin.OnTransferTransition.
func (m *MetricsExtension) OnTransferTransition(_ context.Context, o *transfer.Order, _ transfer.State) error {
	switch o.State {
	case transfer.StatePending:
		m.TransfersCreated.Inc()
	case transfer.StateInTransit:
		m.TransfersInitiated.Inc()
	case transfer.StateReceived:
		m.TransfersReceived.Inc()
		if o.Partial() {
			m.TransfersShort.Inc()
		}
	case transfer.StateCancelled:
		m.TransfersCancelled.Inc()
	}
	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
