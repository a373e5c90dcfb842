// Package audithook bridges Allot lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
//
// Every fulfillment is recorded per variant with the ranked candidates and
// the (rule, score) breakdown that produced the ranking.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/plugin"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/transfer"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnAllocated          = (*Extension)(nil)
	_ plugin.OnAllocationFailed   = (*Extension)(nil)
	_ plugin.OnReserved           = (*Extension)(nil)
	_ plugin.OnReleased           = (*Extension)(nil)
	_ plugin.OnShipped            = (*Extension)(nil)
	_ plugin.OnAdjusted           = (*Extension)(nil)
	_ plugin.OnRestocked          = (*Extension)(nil)
	_ plugin.OnPickupTransition   = (*Extension)(nil)
	_ plugin.OnTransferTransition = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// CandidateScore is one ranked location in an allocation audit event.
type CandidateScore struct {
	LocationID string         `json:"location_id"`
	Score      int            `json:"score"`
	Breakdown  map[string]int `json:"breakdown"`
}

// Extension bridges Allot lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Allocation hooks
// ──────────────────────────────────────────────────

// OnAllocated records one event per allocated variant.
func (e *Extension) OnAllocated(ctx context.Context, orderID string, decisions []allocation.Decision) error {
	for _, d := range decisions {
		action, outcome, severity := ActionOrderAllocated, OutcomeSuccess, SeverityInfo
		var unmet int64
		if d.Plan != nil && d.Plan.Unmet > 0 {
			action, outcome, severity = ActionOrderShortfall, OutcomePartial, SeverityWarning
			unmet = d.Plan.Unmet
		}

		var strategy string
		var allocated []map[string]any
		if d.Plan != nil {
			strategy = d.Plan.Strategy
			for _, a := range d.Plan.Allocations {
				allocated = append(allocated, map[string]any{
					"location_id": a.LocationID.String(),
					"quantity":    a.Quantity,
				})
			}
		}

		ranking := make([]CandidateScore, 0, len(d.Ranking))
		for _, r := range d.Ranking {
			breakdown := make(map[string]int, len(r.Breakdown))
			for _, b := range r.Breakdown {
				breakdown[b.Rule] = b.Score
			}
			ranking = append(ranking, CandidateScore{
				LocationID: r.LocationID.String(),
				Score:      r.Score,
				Breakdown:  breakdown,
			})
		}

		e.record(ctx, action, severity, outcome,
			ResourceOrder, orderID, CategoryAllocation, nil,
			"variant_id", d.VariantID,
			"requested", d.Requested,
			"unmet", unmet,
			"strategy", strategy,
			"allocations", allocated,
			"ranking", ranking,
		)
	}
	return nil
}

// OnAllocationFailed records a fulfillment that reserved nothing.
func (e *Extension) OnAllocationFailed(ctx context.Context, orderID string, err error) error {
	e.record(ctx, ActionAllocationFailed, SeverityWarning, OutcomeFailure,
		ResourceOrder, orderID, CategoryAllocation, err,
	)
	return nil
}

// ──────────────────────────────────────────────────
// Stock hooks
// ──────────────────────────────────────────────────

// OnReserved implements plugin.OnReserved.
func (e *Extension) OnReserved(ctx context.Context, rec *stock.Record, m *stock.Movement) error {
	e.movement(ctx, ActionStockReserved, rec, m)
	return nil
}

// OnReleased implements plugin.OnReleased.
func (e *Extension) OnReleased(ctx context.Context, rec *stock.Record, m *stock.Movement) error {
	e.movement(ctx, ActionStockReleased, rec, m)
	return nil
}

// OnShipped implements plugin.OnShipped.
func (e *Extension) OnShipped(ctx context.Context, rec *stock.Record, m *stock.Movement) error {
	e.movement(ctx, ActionStockShipped, rec, m)
	return nil
}

// OnAdjusted implements plugin.OnAdjusted.
func (e *Extension) OnAdjusted(ctx context.Context, rec *stock.Record, m *stock.Movement) error {
	e.movement(ctx, ActionStockAdjusted, rec, m)
	return nil
}

// OnRestocked implements plugin.OnRestocked.
func (e *Extension) OnRestocked(ctx context.Context, rec *stock.Record, delta int64) error {
	e.record(ctx, ActionStockRestocked, SeverityInfo, OutcomeSuccess,
		ResourceStock, rec.Key().String(), CategoryInventory, nil,
		"variant_id", rec.VariantID,
		"location_id", rec.LocationID.String(),
		"delta", delta,
		"on_hand", rec.OnHand,
	)
	return nil
}

func (e *Extension) movement(ctx context.Context, action string, rec *stock.Record, m *stock.Movement) {
	e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceStock, rec.Key().String(), CategoryInventory, nil,
		"variant_id", rec.VariantID,
		"location_id", rec.LocationID.String(),
		"demand_id", m.DemandID,
		"quantity", m.Quantity,
		"reason", m.Reason,
		"on_hand", m.OnHandAfter,
		"reserved", m.ReservedAfter,
	)
}

// ──────────────────────────────────────────────────
// Workflow hooks
// ──────────────────────────────────────────────────

// OnPickupTransition implements plugin.OnPickupTransition.
func (e *Extension) OnPickupTransition(ctx context.Context, t *pickup.Ticket, from pickup.State) error {
	var action string
	severity := SeverityInfo
	switch t.State {
	case pickup.StatePending:
		action = ActionPickupCreated
	case pickup.StateReady:
		action = ActionPickupReady
	case pickup.StatePickedUp:
		action = ActionPickupCompleted
	case pickup.StateCancelled:
		action = ActionPickupCancelled
		severity = SeverityWarning
	default:
		return nil
	}
	e.record(ctx, action, severity, OutcomeSuccess,
		ResourcePickup, t.ID.String(), CategoryWorkflow, nil,
		"order_id", t.OrderID,
		"location_id", t.LocationID.String(),
		"from", string(from),
		"reason", t.CancelReason,
	)
	return nil
}

// OnTransferTransition implements plugin.OnTransferTransition.
func (e *Extension) OnTransferTransition(ctx context.Context, o *transfer.Order, from transfer.State) error {
	var action string
	outcome, severity := OutcomeSuccess, SeverityInfo
	switch o.State {
	case transfer.StatePending:
		action = ActionTransferCreated
	case transfer.StateInTransit:
		action = ActionTransferInitiated
	case transfer.StateReceived:
		action = ActionTransferReceived
		if o.Partial() {
			outcome, severity = OutcomePartial, SeverityWarning
		}
	case transfer.StateCancelled:
		action = ActionTransferCancelled
		severity = SeverityWarning
	default:
		return nil
	}
	e.record(ctx, action, severity, outcome,
		ResourceTransfer, o.ID.String(), CategoryWorkflow, nil,
		"source_id", o.SourceID.String(),
		"destination_id", o.DestinationID.String(),
		"from", string(from),
		"lines", len(o.Lines),
	)
	return nil
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled. Recorder
// failures are logged, never returned.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) {
	if e.enabled != nil && !e.enabled[action] {
		return
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
}
