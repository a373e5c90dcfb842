package allot

import (
	"log/slog"

	"github.com/xraph/allot/allocation"
	"github.com/xraph/allot/plugin"
	"github.com/xraph/allot/scoring"
)

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the clock used for link windows and timestamps.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the source of ticket ids, transfer ids and pickup
// codes.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithCatalog sets the catalog used to resolve variant weights.
func WithCatalog(c Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithCostOracle sets the shipping cost oracle and enables the
// cost_optimized strategy.
func WithCostOracle(o CostOracle) Option {
	return func(e *Engine) { e.oracle = o }
}

// WithRule registers an extra scoring rule.
func WithRule(r scoring.Rule) Option {
	return func(e *Engine) { e.scorer.Register(r) }
}

// WithStrategy registers a custom allocation strategy under its name.
func WithStrategy(s allocation.Strategy) Option {
	return func(e *Engine) { e.strategies[s.Name()] = s }
}

// WithDefaultStrategy names the strategy used when a Policy leaves it empty.
func WithDefaultStrategy(name string) Option {
	return func(e *Engine) { e.defaultStrategy = name }
}

// WithParallelReservations reserves distinct stock records concurrently.
func WithParallelReservations(enabled bool) Option {
	return func(e *Engine) { e.parallel = enabled }
}

// WithPickupCodeAttempts bounds pickup code generation retries.
func WithPickupCodeAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.codeAttempts = n
		}
	}
}
