package extension

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/vessel"

	"github.com/xraph/allot/store/memory"
	"github.com/xraph/allot/store/sqlite"
)

func TestMergeWithDefaults(t *testing.T) {
	got := mergeWithDefaults(Config{PickupCodeAttempts: 3})
	if got.Driver != DriverMemory {
		t.Errorf("Driver = %q, want %q", got.Driver, DriverMemory)
	}
	if got.DefaultStrategy != "ranked" {
		t.Errorf("DefaultStrategy = %q, want ranked", got.DefaultStrategy)
	}
	if got.PickupCodeAttempts != 3 {
		t.Errorf("PickupCodeAttempts = %d, want 3", got.PickupCodeAttempts)
	}
	if got.Database != "allot" {
		t.Errorf("Database = %q, want allot", got.Database)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{Driver: DriverSQLite, DSN: "/var/lib/allot.db"}
	programmatic := Config{
		Driver:          DriverPostgres,
		DefaultStrategy: "nearest",
		DisableMigrate:  true,
	}

	got := mergeConfigurations(yaml, programmatic)
	if got.Driver != DriverSQLite || got.DSN != "/var/lib/allot.db" {
		t.Errorf("file settings should win, got driver=%q dsn=%q", got.Driver, got.DSN)
	}
	if got.DefaultStrategy != "nearest" {
		t.Errorf("programmatic strategy should fill the gap, got %q", got.DefaultStrategy)
	}
	if !got.DisableMigrate {
		t.Error("programmatic DisableMigrate should be kept")
	}
	if got.PickupCodeAttempts != 8 {
		t.Errorf("PickupCodeAttempts = %d, want default 8", got.PickupCodeAttempts)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, Config{})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("expected memory store, got %T", s)
	}

	s, err = openStore(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "allot.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*sqlite.Store); !ok {
		t.Errorf("expected sqlite store, got %T", s)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := openStore(ctx, Config{Driver: "cassandra"}); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestStoreFromGroveDatabase(t *testing.T) {
	ctx := context.Background()
	drv := sqlitedriver.New()
	if err := drv.Open(ctx, sqlite.ConfigureDSN(filepath.Join(t.TempDir(), "allot.db"))); err != nil {
		t.Fatalf("open driver: %v", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		t.Fatalf("grove open: %v", err)
	}
	defer db.Close()

	c := vessel.New()
	if err := vessel.ProvideValue(c, db, vessel.WithName("inventory")); err != nil {
		t.Fatalf("provide: %v", err)
	}

	got, err := resolveGroveDB(c, "inventory")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	s, err := storeFromGrove(got)
	if err != nil {
		t.Fatalf("storeFromGrove: %v", err)
	}
	if _, ok := s.(*sqlite.Store); !ok {
		t.Errorf("expected sqlite store, got %T", s)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := resolveGroveDB(c, "missing"); err == nil {
		t.Error("expected an error for an unregistered database name")
	}
}

func TestNoMigrateSkipsMigration(t *testing.T) {
	s := noMigrate{memory.New()}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestOptions(t *testing.T) {
	e := &Extension{}
	for _, opt := range []Option{
		WithDriver(DriverSQLite, "x.db"),
		WithDefaultStrategy("highest_stock"),
		WithSequentialReservations(),
		WithPickupCodeAttempts(4),
		WithMetrics(),
		WithDisableMigrate(),
		WithGroveDatabase("inventory"),
	} {
		opt(e)
	}
	if e.config.Driver != DriverSQLite || e.config.DSN != "x.db" {
		t.Errorf("driver not applied: %+v", e.config)
	}
	if !e.config.SequentialReservations || !e.config.EnableMetrics || !e.config.DisableMigrate {
		t.Errorf("flags not applied: %+v", e.config)
	}
	if !e.useGrove || e.config.GroveDatabase != "inventory" {
		t.Errorf("grove database not applied: %+v", e.config)
	}
	if got := len(e.buildEngineOpts()); got != 4 {
		t.Errorf("buildEngineOpts returned %d options, want 4", got)
	}
}
