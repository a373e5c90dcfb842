package allot

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/plugin"
	"github.com/xraph/allot/scoring"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/store"
	"github.com/xraph/allot/transfer"
	"github.com/xraph/allot/types"
)

const tracerName = "github.com/xraph/allot"

// Engine is the fulfillment orchestrator. It resolves candidate locations,
// ranks them, splits each requested variant across them and drives the
// stock ledger, plus the pickup and transfer workflows.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	tracer  trace.Tracer

	// Collaborators
	clock   Clock
	ids     IDGenerator
	catalog Catalog
	oracle  CostOracle

	// Policy
	scorer          *scoring.Engine
	strategies      map[string]allocation.Strategy
	defaultStrategy string
	parallel        bool
	codeAttempts    int

	// Components
	registry  *location.Registry
	ledger    *stock.Ledger
	pickups   *pickup.Workflow
	transfers *transfer.Workflow
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		tracer:          otel.Tracer(tracerName),
		clock:           types.SystemClock{},
		ids:             DefaultIDGenerator{},
		scorer:          scoring.NewEngine(scoring.Baseline()...),
		strategies:      make(map[string]allocation.Strategy),
		defaultStrategy: allocation.NameRanked,
		parallel:        true,
		codeAttempts:    pickup.DefaultCodeAttempts,
	}

	for _, opt := range opts {
		opt(e)
	}

	for _, r := range e.plugins.Rules() {
		e.scorer.Register(r)
	}

	e.registry = location.NewRegistry(s, e.clock, e.logger)
	e.ledger = stock.NewLedger(s,
		stock.WithClock(e.clock),
		stock.WithEmitter(e.plugins),
		stock.WithLogger(e.logger),
	)
	e.pickups = pickup.NewWorkflow(s,
		pickup.WithClock(e.clock),
		pickup.WithEmitter(e.plugins),
		pickup.WithLogger(e.logger),
		pickup.WithIDFunc(e.ids.NewPickupID),
		pickup.WithCodeGenerator(pickup.CodeGeneratorFunc(e.ids.NewPickupCode)),
		pickup.WithCodeAttempts(e.codeAttempts),
	)
	e.transfers = transfer.NewWorkflow(s, e.ledger,
		transfer.WithClock(e.clock),
		transfer.WithEmitter(e.plugins),
		transfer.WithLogger(e.logger),
		transfer.WithIDFunc(e.ids.NewTransferID),
	)

	return e
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("allot: migrate: %w", err)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("allot engine started",
		"default_strategy", e.defaultStrategy,
		"parallel_reservations", e.parallel,
		"rules", len(e.scorer.Rules()),
		"plugins", e.plugins.Count(),
	)
	return nil
}

// Stop shuts plugins down and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// RegisterPlugin adds a plugin after construction. Rules it contributes
// join the scoring engine immediately.
func (e *Engine) RegisterPlugin(p plugin.Plugin) error {
	if err := e.plugins.Register(p); err != nil {
		return err
	}
	if rp, ok := p.(plugin.ScoringRule); ok {
		for _, r := range rp.Rules() {
			e.scorer.Register(r)
		}
	}
	return nil
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Scorer returns the scoring engine.
func (e *Engine) Scorer() *scoring.Engine { return e.scorer }

// Ledger returns the stock ledger.
func (e *Engine) Ledger() *stock.Ledger { return e.ledger }

// Locations returns the location registry.
func (e *Engine) Locations() *location.Registry { return e.registry }

// strategy resolves a strategy name: engine-registered first, then plugin
// contributions, then the built-ins.
func (e *Engine) strategy(name string) (allocation.Strategy, error) {
	if name == "" {
		name = e.defaultStrategy
	}
	if s, ok := e.strategies[name]; ok {
		return s, nil
	}
	if s := e.plugins.Strategy(name); s != nil {
		return s, nil
	}
	return allocation.ByName(name, e.oracle)
}

// ──────────────────────────────────────────────────
// Location administration
// ──────────────────────────────────────────────────

// CreateLocation registers a location.
func (e *Engine) CreateLocation(ctx context.Context, l *location.Location) error {
	if l.ID.IsNil() {
		l.ID = id.NewLocationID()
	}
	if l.Name == "" {
		return ValidationError{Field: "name", Message: "required"}
	}
	if !l.Type.Valid() {
		return ValidationError{Field: "type", Message: fmt.Sprintf("unknown location type %q", l.Type)}
	}
	if l.Coordinates != nil && !l.Coordinates.Valid() {
		return ValidationError{Field: "coordinates", Message: "out of range"}
	}
	l.Entity = types.NewEntity(e.clock.Now())
	return e.store.CreateLocation(ctx, l)
}

// UpdateLocation replaces a location's attributes.
func (e *Engine) UpdateLocation(ctx context.Context, l *location.Location) error {
	if !l.Type.Valid() {
		return ValidationError{Field: "type", Message: fmt.Sprintf("unknown location type %q", l.Type)}
	}
	l.Touch(e.clock.Now())
	return e.store.UpdateLocation(ctx, l)
}

// DeactivateLocation removes a location from candidacy. Stock and
// reservations held there are untouched.
func (e *Engine) DeactivateLocation(ctx context.Context, locationID id.LocationID) error {
	l, err := e.store.GetLocation(ctx, locationID)
	if err != nil {
		return err
	}
	l.Active = false
	l.Touch(e.clock.Now())
	return e.store.UpdateLocation(ctx, l)
}

// GetLocation retrieves a location by ID.
func (e *Engine) GetLocation(ctx context.Context, locationID id.LocationID) (*location.Location, error) {
	return e.store.GetLocation(ctx, locationID)
}

// ListLocations lists locations.
func (e *Engine) ListLocations(ctx context.Context, opts location.ListOpts) ([]*location.Location, error) {
	return e.store.ListLocations(ctx, opts)
}

// LinkStore creates or replaces a store link. A primary link is refused if
// its window overlaps another active primary link of the same store.
func (e *Engine) LinkStore(ctx context.Context, link *location.StoreLink) error {
	if link.StoreID == "" {
		return ValidationError{Field: "store_id", Message: "required"}
	}
	if link.AvailableFrom != nil && link.AvailableUntil != nil && !link.AvailableFrom.Before(*link.AvailableUntil) {
		return ValidationError{Field: "available_until", Message: "must be after available_from"}
	}
	if _, err := e.store.GetLocation(ctx, link.LocationID); err != nil {
		return err
	}
	if link.IsPrimary && link.Active {
		existing, err := e.store.ListStoreLinks(ctx, link.StoreID)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.LocationID.String() == link.LocationID.String() || !other.IsPrimary || !other.Active {
				continue
			}
			if windowsOverlap(link, other) {
				return ValidationError{
					Field:   "is_primary",
					Message: fmt.Sprintf("store %s already has primary location %s in that window", link.StoreID, other.LocationID),
				}
			}
		}
	}
	return e.store.PutStoreLink(ctx, link)
}

// UnlinkStore removes a store link.
func (e *Engine) UnlinkStore(ctx context.Context, storeID string, locationID id.LocationID) error {
	return e.store.DeleteStoreLink(ctx, storeID, locationID)
}

// windowsOverlap reports whether two half-open windows intersect; nil
// bounds are unbounded.
func windowsOverlap(a, b *location.StoreLink) bool {
	if a.AvailableUntil != nil && b.AvailableFrom != nil && !b.AvailableFrom.Before(*a.AvailableUntil) {
		return false
	}
	if b.AvailableUntil != nil && a.AvailableFrom != nil && !a.AvailableFrom.Before(*b.AvailableUntil) {
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Stock administration
// ──────────────────────────────────────────────────

// OpenStock creates the record for a variant at a location.
func (e *Engine) OpenStock(ctx context.Context, variantID string, locationID id.LocationID, backorderable bool) (*stock.Record, error) {
	if _, err := e.store.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	return e.ledger.Open(ctx, stock.Key{VariantID: variantID, LocationID: locationID}, backorderable)
}

// Restock adds qty units, opening the record if needed.
func (e *Engine) Restock(ctx context.Context, variantID string, locationID id.LocationID, qty int64) (*stock.Record, error) {
	if qty <= 0 {
		return nil, stock.InvalidQuantity(0, qty)
	}
	key := stock.Key{VariantID: variantID, LocationID: locationID}
	if _, err := e.OpenStock(ctx, variantID, locationID, false); err != nil {
		return nil, err
	}
	return e.ledger.Adjust(ctx, key, qty, "restock")
}

// AdjustStock applies a signed on-hand correction.
func (e *Engine) AdjustStock(ctx context.Context, variantID string, locationID id.LocationID, delta int64, reason string) (*stock.Record, error) {
	return e.ledger.Adjust(ctx, stock.Key{VariantID: variantID, LocationID: locationID}, delta, reason)
}

// StockRecord returns one record.
func (e *Engine) StockRecord(ctx context.Context, variantID string, locationID id.LocationID) (*stock.Record, error) {
	return e.ledger.Get(ctx, stock.Key{VariantID: variantID, LocationID: locationID})
}

// Movements returns the newest movements of a record.
func (e *Engine) Movements(ctx context.Context, variantID string, locationID id.LocationID, limit int) ([]*stock.Movement, error) {
	return e.ledger.Movements(ctx, stock.Key{VariantID: variantID, LocationID: locationID}, limit)
}

// Reservations lists what a demand currently holds.
func (e *Engine) Reservations(ctx context.Context, demandID string) ([]stock.Reservation, error) {
	return e.ledger.Reservations(ctx, demandID)
}
