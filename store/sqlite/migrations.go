package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Allot store (SQLite).
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
    capabilities TEXT NOT NULL DEFAULT '{}',
    priority     INTEGER NOT NULL DEFAULT 0,
    active       INTEGER NOT NULL DEFAULT 1,
    lat          REAL,
    lng          REAL,
    metadata     TEXT NOT NULL DEFAULT '{}',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
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
    location_id     TEXT NOT NULL,
    is_primary      INTEGER NOT NULL DEFAULT 0,
    priority        INTEGER NOT NULL DEFAULT 0,
    active          INTEGER NOT NULL DEFAULT 1,
    available_from  TEXT,
    available_until TEXT,
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
    on_hand       INTEGER NOT NULL DEFAULT 0,
    reservations  TEXT NOT NULL DEFAULT '{}',
    backorderable INTEGER NOT NULL DEFAULT 0,
    version       INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (variant_id, location_id)
);

CREATE TABLE IF NOT EXISTS allot_movements (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    id             TEXT NOT NULL UNIQUE,
    variant_id     TEXT NOT NULL,
    location_id    TEXT NOT NULL,
    kind           TEXT NOT NULL,
    demand_id      TEXT NOT NULL DEFAULT '',
    quantity       INTEGER NOT NULL,
    reason         TEXT NOT NULL DEFAULT '',
    on_hand_after  INTEGER NOT NULL,
    reserved_after INTEGER NOT NULL,
    at             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_allot_movements_key ON allot_movements (variant_id, location_id, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS allot_movements; DROP TABLE IF EXISTS allot_stock_records`)
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
    lines         TEXT NOT NULL DEFAULT '[]',
    ready_at      TEXT,
    picked_up_at  TEXT,
    cancelled_at  TEXT,
    cancel_reason TEXT NOT NULL DEFAULT '',
    version       INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
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
    lines                TEXT NOT NULL DEFAULT '[]',
    state                TEXT NOT NULL,
    requested_receive_by TEXT,
    initiated_at         TEXT,
    received_at          TEXT,
    cancelled_at         TEXT,
    version              INTEGER NOT NULL DEFAULT 1,
    created_at           TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
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
