// Package sqlite implements store.Store on SQLite through the grove ORM and
// the pure-Go modernc.org/sqlite driver.
//
// Open configures a single connection whose transactions begin with
// BEGIN IMMEDIATE, so a stock mutation holds the write lock from its first
// read and concurrent writers queue behind busy_timeout instead of failing
// with SQLITE_BUSY on lock upgrade.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	// Registers the "sqlite" migration executor with grove's migrate package.
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/store"
	"github.com/xraph/allot/transfer"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// DefaultBusyTimeoutMS is how long a connection waits for the write lock.
const DefaultBusyTimeoutMS = 5000

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM. The handle should be
// opened with a pool size of one and a DSN prepared by ConfigureDSN, as Open
// does; otherwise concurrent mutations may fail with SQLITE_BUSY.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open opens (or creates) the database at dsn, for example a file path or
// "file::memory:?cache=shared".
func Open(ctx context.Context, dsn string) (*Store, error) {
	drv := sqlitedriver.New()
	if err := drv.Open(ctx, ConfigureDSN(dsn), driver.WithPoolSize(1)); err != nil {
		return nil, fmt.Errorf("allot/sqlite: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("allot/sqlite: open grove: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("allot/sqlite: ping: %w", err)
	}
	return New(db), nil
}

// ConfigureDSN adds immediate transaction locking and a busy timeout to dsn
// unless the caller already set them.
func ConfigureDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", DefaultBusyTimeoutMS))
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("allot/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("allot/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlitedriver.SqliteTx) error) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ==================== Location Store ====================

func (s *Store) CreateLocation(ctx context.Context, l *location.Location) error {
	m, err := toLocationModel(l)
	if err != nil {
		return fmt.Errorf("allot/sqlite: encode location: %w", err)
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	if isConstraint(err) {
		return location.ErrLocationExists
	}
	if err != nil {
		return fmt.Errorf("allot/sqlite: create location: %w", err)
	}
	return nil
}

func (s *Store) GetLocation(ctx context.Context, locationID id.LocationID) (*location.Location, error) {
	m := new(locationModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", locationID.String()).
		Scan(ctx)
	if isNoRows(err) {
		return nil, location.ErrLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("allot/sqlite: get location: %w", err)
	}
	return fromLocationModel(m)
}

func (s *Store) UpdateLocation(ctx context.Context, l *location.Location) error {
	m, err := toLocationModel(l)
	if err != nil {
		return fmt.Errorf("allot/sqlite: encode location: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).
		Column("name", "type", "capabilities", "priority", "active", "lat", "lng", "metadata", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/sqlite: update location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return location.ErrLocationNotFound
	}
	return nil
}

func (s *Store) ListLocations(ctx context.Context, opts location.ListOpts) ([]*location.Location, error) {
	var models []locationModel
	q := s.sdb.NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active = 1")
	}
	if len(opts.Types) > 0 {
		marks := make([]string, len(opts.Types))
		args := make([]any, len(opts.Types))
		for i, t := range opts.Types {
			marks[i] = "?"
			args[i] = string(t)
		}
		q = q.Where("type IN ("+strings.Join(marks, ", ")+")", args...)
	}
	q = paginate(q, opts.Limit, opts.Offset).OrderExpr("priority ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/sqlite: list locations: %w", err)
	}

	result := make([]*location.Location, 0, len(models))
	for i := range models {
		l, err := fromLocationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, nil
}

// PutStoreLink checks that the location exists inside the write transaction.
func (s *Store) PutStoreLink(ctx context.Context, link *location.StoreLink) error {
	return s.inTx(ctx, func(tx *sqlitedriver.SqliteTx) error {
		n, err := tx.NewSelect(new(locationModel)).
			Where("id = ?", link.LocationID.String()).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("allot/sqlite: put store link: %w", err)
		}
		if n == 0 {
			return location.ErrLocationNotFound
		}
		_, err = tx.NewInsert(toStoreLinkModel(link)).
			OnConflict("(store_id, location_id) DO UPDATE").
			Set("is_primary = excluded.is_primary").
			Set("priority = excluded.priority").
			Set("active = excluded.active").
			Set("available_from = excluded.available_from").
			Set("available_until = excluded.available_until").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("allot/sqlite: put store link: %w", err)
		}
		return nil
	})
}

func (s *Store) ListStoreLinks(ctx context.Context, storeID string) ([]*location.StoreLink, error) {
	var models []storeLinkModel
	err := s.sdb.NewSelect(&models).
		Where("store_id = ?", storeID).
		OrderExpr("priority ASC, location_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("allot/sqlite: list store links: %w", err)
	}

	result := make([]*location.StoreLink, 0, len(models))
	for i := range models {
		link, err := fromStoreLinkModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, link)
	}
	return result, nil
}

func (s *Store) DeleteStoreLink(ctx context.Context, storeID string, locationID id.LocationID) error {
	res, err := s.sdb.NewDelete((*storeLinkModel)(nil)).
		Where("store_id = ?", storeID).
		Where("location_id = ?", locationID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/sqlite: delete store link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return location.ErrLinkNotFound
	}
	return nil
}

// ==================== Stock Store ====================

func (s *Store) CreateStockRecord(ctx context.Context, r *stock.Record) error {
	m, err := toStockRecordModel(r)
	if err != nil {
		return fmt.Errorf("allot/sqlite: encode stock record: %w", err)
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	if isConstraint(err) {
		return stock.ErrRecordExists
	}
	if err != nil {
		return fmt.Errorf("allot/sqlite: create stock record: %w", err)
	}
	return nil
}

func (s *Store) GetStockRecord(ctx context.Context, key stock.Key) (*stock.Record, error) {
	m := new(stockRecordModel)
	err := s.sdb.NewSelect(m).
		Where("variant_id = ?", key.VariantID).
		Where("location_id = ?", key.LocationID.String()).
		Scan(ctx)
	if isNoRows(err) {
		return nil, stock.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("allot/sqlite: get stock record: %w", err)
	}
	return fromStockRecordModel(m)
}

func (s *Store) ListStockRecords(ctx context.Context, opts stock.ListOpts) ([]*stock.Record, error) {
	var models []stockRecordModel
	q := s.sdb.NewSelect(&models)

	if opts.VariantID != "" {
		q = q.Where("variant_id = ?", opts.VariantID)
	}
	if !opts.LocationID.IsNil() {
		q = q.Where("location_id = ?", opts.LocationID.String())
	}
	if opts.DemandID != "" {
		q = q.Where("EXISTS (SELECT 1 FROM json_each(reservations) WHERE json_each.key = ?)", opts.DemandID)
	}
	q = q.OrderExpr("variant_id ASC, location_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/sqlite: list stock records: %w", err)
	}

	result := make([]*stock.Record, 0, len(models))
	for i := range models {
		r, err := fromStockRecordModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

// MutateStockRecord applies fn and writes the record and its movement in a
// single immediate transaction. A nil movement commits nothing.
func (s *Store) MutateStockRecord(ctx context.Context, key stock.Key, fn stock.MutateFunc) (*stock.Record, error) {
	var result *stock.Record
	err := s.inTx(ctx, func(tx *sqlitedriver.SqliteTx) error {
		m := new(stockRecordModel)
		err := tx.NewSelect(m).
			Where("variant_id = ?", key.VariantID).
			Where("location_id = ?", key.LocationID.String()).
			Scan(ctx)
		if isNoRows(err) {
			return stock.ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("allot/sqlite: read stock record: %w", err)
		}
		r, err := fromStockRecordModel(m)
		if err != nil {
			return err
		}

		mv, err := fn(r)
		if err != nil {
			return err
		}
		result = r
		if mv == nil {
			return nil
		}

		r.Version++
		next, err := toStockRecordModel(r)
		if err != nil {
			return fmt.Errorf("allot/sqlite: encode stock record: %w", err)
		}
		if _, err := tx.NewUpdate(next).
			Column("on_hand", "reservations", "backorderable", "version", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("allot/sqlite: update stock record: %w", err)
		}
		if _, err := tx.NewInsert(toMovementModel(mv)).Exec(ctx); err != nil {
			return fmt.Errorf("allot/sqlite: insert movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListMovements(ctx context.Context, key stock.Key, limit int) ([]*stock.Movement, error) {
	var models []movementModel
	q := s.sdb.NewSelect(&models).
		Where("variant_id = ?", key.VariantID).
		Where("location_id = ?", key.LocationID.String()).
		OrderExpr("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/sqlite: list movements: %w", err)
	}

	result := make([]*stock.Movement, 0, len(models))
	for i := range models {
		mv, err := fromMovementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, mv)
	}
	return result, nil
}

// ==================== Pickup Store ====================

func (s *Store) CreatePickup(ctx context.Context, t *pickup.Ticket) error {
	m, err := toPickupModel(t)
	if err != nil {
		return fmt.Errorf("allot/sqlite: encode pickup: %w", err)
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	if isConstraint(err) {
		return pickup.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("allot/sqlite: create pickup: %w", err)
	}
	return nil
}

func (s *Store) GetPickup(ctx context.Context, ticketID id.PickupID) (*pickup.Ticket, error) {
	return s.getPickup(ctx, "id", ticketID.String())
}

func (s *Store) GetPickupByCode(ctx context.Context, code string) (*pickup.Ticket, error) {
	return s.getPickup(ctx, "code", code)
}

func (s *Store) getPickup(ctx context.Context, column, value string) (*pickup.Ticket, error) {
	m := new(pickupModel)
	err := s.sdb.NewSelect(m).
		Where(column+" = ?", value).
		Scan(ctx)
	if isNoRows(err) {
		return nil, pickup.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("allot/sqlite: get pickup: %w", err)
	}
	return fromPickupModel(m)
}

// UpdatePickup writes t if the stored version still equals t.Version and
// bumps t.Version on success.
func (s *Store) UpdatePickup(ctx context.Context, t *pickup.Ticket) error {
	m, err := toPickupModel(t)
	if err != nil {
		return fmt.Errorf("allot/sqlite: encode pickup: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).
		Set("state = ?", m.State).
		Set("lines = ?", m.Lines).
		Set("ready_at = ?", m.ReadyAt).
		Set("picked_up_at = ?", m.PickedUpAt).
		Set("cancelled_at = ?", m.CancelledAt).
		Set("cancel_reason = ?", m.CancelReason).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/sqlite: update pickup: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetPickup(ctx, t.ID); err != nil {
			return err
		}
		return pickup.ErrConflict
	}
	t.Version++
	return nil
}

func (s *Store) ListPickups(ctx context.Context, opts pickup.ListOpts) ([]*pickup.Ticket, error) {
	var models []pickupModel
	q := s.sdb.NewSelect(&models)

	if opts.OrderID != "" {
		q = q.Where("order_id = ?", opts.OrderID)
	}
	if !opts.LocationID.IsNil() {
		q = q.Where("location_id = ?", opts.LocationID.String())
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	q = paginate(q, opts.Limit, opts.Offset).OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/sqlite: list pickups: %w", err)
	}

	result := make([]*pickup.Ticket, 0, len(models))
	for i := range models {
		t, err := fromPickupModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// ==================== Transfer Store ====================

func (s *Store) CreateTransfer(ctx context.Context, o *transfer.Order) error {
	m, err := toTransferModel(o)
	if err != nil {
		return fmt.Errorf("allot/sqlite: encode transfer: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("allot/sqlite: create transfer: %w", err)
	}
	return nil
}

func (s *Store) GetTransfer(ctx context.Context, transferID id.TransferID) (*transfer.Order, error) {
	m := new(transferModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", transferID.String()).
		Scan(ctx)
	if isNoRows(err) {
		return nil, transfer.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("allot/sqlite: get transfer: %w", err)
	}
	return fromTransferModel(m)
}

// UpdateTransfer writes o if the stored version still equals o.Version and
// bumps o.Version on success.
func (s *Store) UpdateTransfer(ctx context.Context, o *transfer.Order) error {
	m, err := toTransferModel(o)
	if err != nil {
		return fmt.Errorf("allot/sqlite: encode transfer: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).
		Set("lines = ?", m.Lines).
		Set("state = ?", m.State).
		Set("requested_receive_by = ?", m.RequestedReceiveBy).
		Set("initiated_at = ?", m.InitiatedAt).
		Set("received_at = ?", m.ReceivedAt).
		Set("cancelled_at = ?", m.CancelledAt).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/sqlite: update transfer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetTransfer(ctx, o.ID); err != nil {
			return err
		}
		return transfer.ErrConflict
	}
	o.Version++
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, opts transfer.ListOpts) ([]*transfer.Order, error) {
	var models []transferModel
	q := s.sdb.NewSelect(&models)

	if !opts.LocationID.IsNil() {
		loc := opts.LocationID.String()
		q = q.Where("(source_id = ? OR destination_id = ?)", loc, loc)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	q = paginate(q, opts.Limit, opts.Offset).OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/sqlite: list transfers: %w", err)
	}

	result := make([]*transfer.Order, 0, len(models))
	for i := range models {
		o, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, nil
}

// ==================== Helpers ====================

// paginate sets LIMIT and OFFSET. SQLite rejects an OFFSET without a LIMIT,
// so an offset alone gets an effectively unbounded limit.
func paginate(q *sqlitedriver.SelectQuery, limit, offset int) *sqlitedriver.SelectQuery {
	if offset > 0 && limit <= 0 {
		limit = math.MaxInt32
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isConstraint reports a UNIQUE or PRIMARY KEY violation.
func isConstraint(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
