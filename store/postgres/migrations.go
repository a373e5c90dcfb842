package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Allot store.
var Migrations = migrate.NewGroup("allot")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_allot_locations",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS allot_locations (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL DEFAULT '',
    type         TEXT NOT NULL,
    capabilities JSONB NOT NULL DEFAULT '{}',
    priority     INT NOT NULL DEFAULT 0,
    active       BOOLEAN NOT NULL DEFAULT TRUE,
    lat          DOUBLE PRECISION,
    lng          DOUBLE PRECISION,
    metadata     JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_allot_locations_order ON allot_locations (priority, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS allot_locations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_allot_store_links",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS allot_store_links (
    store_id        TEXT NOT NULL,
    location_id     TEXT NOT NULL REFERENCES allot_locations (id),
    is_primary      BOOLEAN NOT NULL DEFAULT FALSE,
    priority        INT NOT NULL DEFAULT 0,
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    available_from  TIMESTAMPTZ,
    available_until TIMESTAMPTZ,
    PRIMARY KEY (store_id, location_id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS allot_store_links`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_allot_stock",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS allot_stock_records (
    variant_id    TEXT NOT NULL,
    location_id   TEXT NOT NULL,
    on_hand       BIGINT NOT NULL DEFAULT 0 CHECK (on_hand >= 0),
    reservations  JSONB NOT NULL DEFAULT '{}',
    backorderable BOOLEAN NOT NULL DEFAULT FALSE,
    version       BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (variant_id, location_id)
);

CREATE INDEX IF NOT EXISTS idx_allot_stock_reservations ON allot_stock_records USING GIN (reservations);

CREATE TABLE IF NOT EXISTS allot_movements (
    seq            BIGSERIAL PRIMARY KEY,
    id             TEXT NOT NULL UNIQUE,
    variant_id     TEXT NOT NULL,
    location_id    TEXT NOT NULL,
    kind           TEXT NOT NULL,
    demand_id      TEXT NOT NULL DEFAULT '',
    quantity       BIGINT NOT NULL,
    reason         TEXT NOT NULL DEFAULT '',
    on_hand_after  BIGINT NOT NULL,
    reserved_after BIGINT NOT NULL,
    at             TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_allot_movements_key ON allot_movements (variant_id, location_id, seq DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS allot_movements, allot_stock_records`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_allot_pickups",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS allot_pickups (
    id            TEXT PRIMARY KEY,
    order_id      TEXT NOT NULL,
    location_id   TEXT NOT NULL,
    state         TEXT NOT NULL,
    code          TEXT NOT NULL UNIQUE,
    lines         JSONB NOT NULL DEFAULT '[]',
    ready_at      TIMESTAMPTZ,
    picked_up_at  TIMESTAMPTZ,
    cancelled_at  TIMESTAMPTZ,
    cancel_reason TEXT NOT NULL DEFAULT '',
    version       BIGINT NOT NULL DEFAULT 1,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_allot_pickups_order ON allot_pickups (order_id);
CREATE INDEX IF NOT EXISTS idx_allot_pickups_location_state ON allot_pickups (location_id, state);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS allot_pickups`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_allot_transfers",
			Version: "20260301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS allot_transfers (
    id                   TEXT PRIMARY KEY,
    source_id            TEXT NOT NULL,
    destination_id       TEXT NOT NULL,
    lines                JSONB NOT NULL DEFAULT '[]',
    state                TEXT NOT NULL,
    requested_receive_by TIMESTAMPTZ,
    initiated_at         TIMESTAMPTZ,
    received_at          TIMESTAMPTZ,
    cancelled_at         TIMESTAMPTZ,
    version              BIGINT NOT NULL DEFAULT 1,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_allot_transfers_source ON allot_transfers (source_id, state);
CREATE INDEX IF NOT EXISTS idx_allot_transfers_destination ON allot_transfers (destination_id, state);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS allot_transfers`)
				return err
			},
		},
	)
}
