// Package extension provides the Forge extension adapter for Allot.
//
// It implements the forge.Extension interface to integrate the allocation
// engine into a Forge application with DI registration, store selection
// and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.allot" or "allot" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"
	"go.opentelemetry.io/otel"

	"github.com/xraph/allot"
	"github.com/xraph/allot/observability"
	"github.com/xraph/allot/store"
	"github.com/xraph/allot/store/memory"
	"github.com/xraph/allot/store/mongo"
	"github.com/xraph/allot/store/postgres"
	"github.com/xraph/allot/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "allot"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Multi-location inventory allocation engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// ErrUnknownDriver is returned for an unsupported Config.Driver.
var ErrUnknownDriver = errors.New("allot: unknown store driver")

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Allot as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *allot.Engine
	store      store.Store
	engineOpts []allot.Option
	useGrove   bool
}

// New creates a new Allot Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying allocation engine.
// This is nil until Register is called.
func (e *Extension) Engine() *allot.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration, opens the
// store, builds the engine and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.resolveStore(fapp)
		if err != nil {
			return err
		}
		e.store = s
	}

	backing := e.store
	if e.config.DisableMigrate {
		backing = noMigrate{e.store}
	}

	e.engine = allot.New(backing, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*allot.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("allot: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("allot: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs allot.Option values from the resolved config.
// Pass-through options come last so they win over config.
func (e *Extension) buildEngineOpts() []allot.Option {
	opts := make([]allot.Option, 0, len(e.engineOpts)+4)

	if e.config.DefaultStrategy != "" {
		opts = append(opts, allot.WithDefaultStrategy(e.config.DefaultStrategy))
	}
	opts = append(opts,
		allot.WithParallelReservations(!e.config.SequentialReservations),
		allot.WithPickupCodeAttempts(e.config.PickupCodeAttempts),
	)
	if e.config.EnableMetrics {
		factory := observability.NewOTelFactory(otel.Meter("github.com/xraph/allot"))
		opts = append(opts, allot.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	return append(opts, e.engineOpts...)
}

// resolveStore uses a grove.DB from the DI container when one was requested
// and otherwise opens the store named by the config.
func (e *Extension) resolveStore(fapp forge.App) (store.Store, error) {
	if !e.useGrove && e.config.GroveDatabase == "" {
		return openStore(context.Background(), e.config)
	}
	db, err := resolveGroveDB(fapp.Container(), e.config.GroveDatabase)
	if err != nil {
		return nil, fmt.Errorf("allot: resolve grove database %q: %w", e.config.GroveDatabase, err)
	}
	return storeFromGrove(db)
}

func resolveGroveDB(c forge.Container, name string) (*grove.DB, error) {
	if name == "" {
		return vessel.Inject[*grove.DB](c)
	}
	return vessel.InjectNamed[*grove.DB](c, name)
}

// storeFromGrove picks the store backend matching the grove driver.
func storeFromGrove(db *grove.DB) (store.Store, error) {
	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("%w: grove driver %q", ErrUnknownDriver, name)
	}
}

// openStore builds the store named by cfg.Driver.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverPostgres:
		return asStore(postgres.Open(ctx, cfg.DSN))
	case DriverSQLite:
		return asStore(sqlite.Open(ctx, cfg.DSN))
	case DriverMongo:
		return asStore(mongo.Open(ctx, cfg.DSN, cfg.Database))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// asStore drops the typed nil a failed Open returns.
func asStore[S store.Store](s S, err error) (store.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// noMigrate hides Migrate from the engine when auto-migration is disabled.
type noMigrate struct {
	store.Store
}

func (noMigrate) Migrate(context.Context) error { return nil }

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("allot: configuration is required but not found in config files; " +
				"ensure 'extensions.allot' or 'allot' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("allot: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("driver", e.config.Driver),
		forge.F("default_strategy", e.config.DefaultStrategy),
		forge.F("sequential_reservations", e.config.SequentialReservations),
		forge.F("pickup_code_attempts", e.config.PickupCodeAttempts),
		forge.F("enable_metrics", e.config.EnableMetrics),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.allot", "allot"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("allot: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("allot: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = defaults.DefaultStrategy
	}
	if cfg.PickupCodeAttempts <= 0 {
		cfg.PickupCodeAttempts = defaults.PickupCodeAttempts
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.SequentialReservations {
		yamlConfig.SequentialReservations = true
	}
	if programmaticConfig.EnableMetrics {
		yamlConfig.EnableMetrics = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.DSN == "" {
		yamlConfig.DSN = programmaticConfig.DSN
	}
	if yamlConfig.Database == "" {
		yamlConfig.Database = programmaticConfig.Database
	}
	if yamlConfig.DefaultStrategy == "" {
		yamlConfig.DefaultStrategy = programmaticConfig.DefaultStrategy
	}
	if yamlConfig.GroveDatabase == "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}

	// Int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PickupCodeAttempts == 0 && programmaticConfig.PickupCodeAttempts != 0 {
		yamlConfig.PickupCodeAttempts = programmaticConfig.PickupCodeAttempts
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
