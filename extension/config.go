package extension

// Store drivers selectable from configuration.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the Allot extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.allot" or "allot" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend when no store was supplied with
	// WithStore: memory, postgres, sqlite or mongo (default: memory).
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string for the postgres, sqlite and mongo drivers.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the MongoDB database name (default: "allot").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// DefaultStrategy names the allocation strategy used when a request
	// does not pick one (default: "ranked").
	DefaultStrategy string `json:"default_strategy" mapstructure:"default_strategy" yaml:"default_strategy"`

	// SequentialReservations reserves the records of a plan one at a time
	// instead of concurrently.
	SequentialReservations bool `json:"sequential_reservations" mapstructure:"sequential_reservations" yaml:"sequential_reservations"`

	// PickupCodeAttempts bounds retries when a generated pickup code
	// collides with an existing one (default: 8).
	PickupCodeAttempts int `json:"pickup_code_attempts" mapstructure:"pickup_code_attempts" yaml:"pickup_code_attempts"`

	// EnableMetrics registers the OpenTelemetry metrics plugin against
	// the global meter provider.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and builds the
	// store matching its driver (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:             DriverMemory,
		Database:           "allot",
		DefaultStrategy:    "ranked",
		PickupCodeAttempts: 8,
	}
}
