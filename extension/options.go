package extension

import (
	"github.com/xraph/allot"
	"github.com/xraph/allot/plugin"
	"github.com/xraph/allot/store"
)

// Option configures the Allot Forge extension.
type Option func(*Extension)

// WithStore sets the store for the allot engine. It takes precedence over
// Config.Driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes an allot.Option through to the underlying engine.
func WithEngineOption(opt allot.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an allot plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, allot.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDriver selects the store backend and its connection string.
func WithDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Driver = driver
		e.config.DSN = dsn
	}
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension builds the store backend (postgres/sqlite/mongo) matching the
// grove driver. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}

// WithDefaultStrategy sets the strategy used when a request names none.
func WithDefaultStrategy(name string) Option {
	return func(e *Extension) { e.config.DefaultStrategy = name }
}

// WithSequentialReservations reserves plan records one at a time.
func WithSequentialReservations() Option {
	return func(e *Extension) { e.config.SequentialReservations = true }
}

// WithPickupCodeAttempts bounds pickup code collision retries.
func WithPickupCodeAttempts(n int) Option {
	return func(e *Extension) { e.config.PickupCodeAttempts = n }
}

// WithMetrics registers the OpenTelemetry metrics plugin.
func WithMetrics() Option {
	return func(e *Extension) { e.config.EnableMetrics = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
