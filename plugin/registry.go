package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/scoring"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/transfer"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event never reflects.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onReserved           []OnReserved
	onReleased           []OnReleased
	onShipped            []OnShipped
	onAdjusted           []OnAdjusted
	onRestocked          []OnRestocked
	onAllocated          []OnAllocated
	onAllocationFailed   []OnAllocationFailed
	onPickupTransition   []OnPickupTransition
	onTransferTransition []OnTransferTransition
	scoringRules         []ScoringRule
	strategies           map[string]allocation.Strategy
}

var (
	_ stock.Emitter    = (*Registry)(nil)
	_ pickup.Emitter   = (*Registry)(nil)
	_ transfer.Emitter = (*Registry)(nil)
)

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:     slog.Default(),
		timeout:    DefaultHookTimeout,
		strategies: make(map[string]allocation.Strategy),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnReserved); ok {
		r.onReserved = append(r.onReserved, v)
	}
	if v, ok := p.(OnReleased); ok {
		r.onReleased = append(r.onReleased, v)
	}
	if v, ok := p.(OnShipped); ok {
		r.onShipped = append(r.onShipped, v)
	}
	if v, ok := p.(OnAdjusted); ok {
		r.onAdjusted = append(r.onAdjusted, v)
	}
	if v, ok := p.(OnRestocked); ok {
		r.onRestocked = append(r.onRestocked, v)
	}
	if v, ok := p.(OnAllocated); ok {
		r.onAllocated = append(r.onAllocated, v)
	}
	if v, ok := p.(OnAllocationFailed); ok {
		r.onAllocationFailed = append(r.onAllocationFailed, v)
	}
	if v, ok := p.(OnPickupTransition); ok {
		r.onPickupTransition = append(r.onPickupTransition, v)
	}
	if v, ok := p.(OnTransferTransition); ok {
		r.onTransferTransition = append(r.onTransferTransition, v)
	}
	if v, ok := p.(ScoringRule); ok {
		r.scoringRules = append(r.scoringRules, v)
	}
	if v, ok := p.(AllocationStrategy); ok {
		for _, s := range v.Strategies() {
			r.strategies[s.Name()] = s
		}
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnReserved", reflect.TypeFor[OnReserved]()},
	{"OnReleased", reflect.TypeFor[OnReleased]()},
	{"OnShipped", reflect.TypeFor[OnShipped]()},
	{"OnAdjusted", reflect.TypeFor[OnAdjusted]()},
	{"OnRestocked", reflect.TypeFor[OnRestocked]()},
	{"OnAllocated", reflect.TypeFor[OnAllocated]()},
	{"OnAllocationFailed", reflect.TypeFor[OnAllocationFailed]()},
	{"OnPickupTransition", reflect.TypeFor[OnPickupTransition]()},
	{"OnTransferTransition", reflect.TypeFor[OnTransferTransition]()},
	{"ScoringRule", reflect.TypeFor[ScoringRule]()},
	{"AllocationStrategy", reflect.TypeFor[AllocationStrategy]()},
}

// implementedInterfaces lists the hook interfaces p implements, for logging.
func implementedInterfaces(p Plugin) []string {
	var out []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Rules returns every rule contributed by ScoringRule plugins.
func (r *Registry) Rules() []scoring.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []scoring.Rule
	for _, p := range r.scoringRules {
		out = append(out, p.Rules()...)
	}
	return out
}

// Strategy returns a plugin-contributed strategy by name.
func (r *Registry) Strategy(name string) allocation.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategies[name]
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error { return p.OnInit(ctx, engine) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error { return p.OnShutdown(ctx) })
	}
}

// EmitStockMoved dispatches a ledger movement to the hook matching its kind.
func (r *Registry) EmitStockMoved(ctx context.Context, rec *stock.Record, m *stock.Movement) {
	r.mu.RLock()
	reserved, released, shipped, adjusted := r.onReserved, r.onReleased, r.onShipped, r.onAdjusted
	r.mu.RUnlock()

	switch m.Kind {
	case stock.MovementReserved:
		for _, p := range reserved {
			r.call(ctx, p.Name(), "OnReserved", func() error { return p.OnReserved(ctx, rec, m) })
		}
	case stock.MovementReleased:
		for _, p := range released {
			r.call(ctx, p.Name(), "OnReleased", func() error { return p.OnReleased(ctx, rec, m) })
		}
	case stock.MovementShipped:
		for _, p := range shipped {
			r.call(ctx, p.Name(), "OnShipped", func() error { return p.OnShipped(ctx, rec, m) })
		}
	case stock.MovementAdjusted:
		for _, p := range adjusted {
			r.call(ctx, p.Name(), "OnAdjusted", func() error { return p.OnAdjusted(ctx, rec, m) })
		}
	}
}

// EmitRestocked calls OnRestocked for all plugins that implement it.
func (r *Registry) EmitRestocked(ctx context.Context, rec *stock.Record, delta int64) {
	r.mu.RLock()
	plugins := r.onRestocked
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnRestocked", func() error { return p.OnRestocked(ctx, rec, delta) })
	}
}

// EmitAllocated calls OnAllocated for all plugins that implement it.
func (r *Registry) EmitAllocated(ctx context.Context, orderID string, decisions []allocation.Decision) {
	r.mu.RLock()
	plugins := r.onAllocated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnAllocated", func() error { return p.OnAllocated(ctx, orderID, decisions) })
	}
}

// EmitAllocationFailed calls OnAllocationFailed for all plugins that implement it.
func (r *Registry) EmitAllocationFailed(ctx context.Context, orderID string, cause error) {
	r.mu.RLock()
	plugins := r.onAllocationFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnAllocationFailed", func() error { return p.OnAllocationFailed(ctx, orderID, cause) })
	}
}

// EmitPickupTransition calls OnPickupTransition for all plugins that implement it.
func (r *Registry) EmitPickupTransition(ctx context.Context, t *pickup.Ticket, from pickup.State) {
	r.mu.RLock()
	plugins := r.onPickupTransition
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPickupTransition", func() error { return p.OnPickupTransition(ctx, t, from) })
	}
}

// EmitTransferTransition calls OnTransferTransition for all plugins that implement it.
func (r *Registry) EmitTransferTransition(ctx context.Context, o *transfer.Order, from transfer.State) {
	r.mu.RLock()
	plugins := r.onTransferTransition
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnTransferTransition", func() error { return p.OnTransferTransition(ctx, o, from) })
	}
}

// call runs one hook and logs its failure. Hooks never fail the operation
// that triggered them.
func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the allocation pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
