// Package postgres implements store.Store on PostgreSQL through the grove ORM.
//
// Stock mutations run in a transaction that locks the record row with
// SELECT ... FOR UPDATE, so concurrent writers to one (variant, location)
// serialize in the database while other records proceed.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	// Registers the "pg" migration executor with grove's migrate package.
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/store"
	"github.com/xraph/allot/transfer"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM. The caller keeps
// ownership of db unless it calls Close on the store.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// Open connects to databaseURL through the grove pg driver and verifies the
// connection with a ping.
func Open(ctx context.Context, databaseURL string, opts ...driver.Option) (*Store, error) {
	drv := pgdriver.New()
	if err := drv.Open(ctx, databaseURL, opts...); err != nil {
		return nil, fmt.Errorf("allot/postgres: connect: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("allot/postgres: open grove: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("allot/postgres: ping: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("allot/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("allot/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Location Store ====================

func (s *Store) CreateLocation(ctx context.Context, l *location.Location) error {
	m, err := toLocationModel(l)
	if err != nil {
		return fmt.Errorf("allot/postgres: encode location: %w", err)
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return location.ErrLocationExists
	}
	if err != nil {
		return fmt.Errorf("allot/postgres: create location: %w", err)
	}
	return nil
}

func (s *Store) GetLocation(ctx context.Context, locationID id.LocationID) (*location.Location, error) {
	m := new(locationModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", locationID.String()).
		Scan(ctx)
	if isNoRows(err) {
		return nil, location.ErrLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("allot/postgres: get location: %w", err)
	}
	return fromLocationModel(m)
}

func (s *Store) UpdateLocation(ctx context.Context, l *location.Location) error {
	m, err := toLocationModel(l)
	if err != nil {
		return fmt.Errorf("allot/postgres: encode location: %w", err)
	}
	res, err := s.pg.NewUpdate(m).
		Column("name", "type", "capabilities", "priority", "active", "lat", "lng", "metadata", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/postgres: update location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return location.ErrLocationNotFound
	}
	return nil
}

func (s *Store) ListLocations(ctx context.Context, opts location.ListOpts) ([]*location.Location, error) {
	var models []locationModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.ActiveOnly {
		q = q.Where("active")
	}
	if len(opts.Types) > 0 {
		kinds := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			kinds[i] = string(t)
		}
		argIdx++
		q = q.Where(fmt.Sprintf("type = ANY($%d)", argIdx), kinds)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("priority ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/postgres: list locations: %w", err)
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

func (s *Store) PutStoreLink(ctx context.Context, link *location.StoreLink) error {
	m := toStoreLinkModel(link)
	_, err := s.pg.NewInsert(m).
		OnConflict("(store_id, location_id) DO UPDATE").
		Set("is_primary = EXCLUDED.is_primary").
		Set("priority = EXCLUDED.priority").
		Set("active = EXCLUDED.active").
		Set("available_from = EXCLUDED.available_from").
		Set("available_until = EXCLUDED.available_until").
		Exec(ctx)
	if isForeignKeyViolation(err) {
		return location.ErrLocationNotFound
	}
	if err != nil {
		return fmt.Errorf("allot/postgres: put store link: %w", err)
	}
	return nil
}

func (s *Store) ListStoreLinks(ctx context.Context, storeID string) ([]*location.StoreLink, error) {
	var models []storeLinkModel
	err := s.pg.NewSelect(&models).
		Where("store_id = $1", storeID).
		OrderExpr("priority ASC, location_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("allot/postgres: list store links: %w", err)
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
	res, err := s.pg.NewDelete((*storeLinkModel)(nil)).
		Where("store_id = $1", storeID).
		Where("location_id = $2", locationID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/postgres: delete store link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return location.ErrLinkNotFound
	}
	return nil
}

// ==================== Stock Store ====================

func (s *Store) CreateStockRecord(ctx context.Context, r *stock.Record) error {
	_, err := s.pg.NewInsert(toStockRecordModel(r)).Exec(ctx)
	if isUniqueViolation(err) {
		return stock.ErrRecordExists
	}
	if err != nil {
		return fmt.Errorf("allot/postgres: create stock record: %w", err)
	}
	return nil
}

func (s *Store) GetStockRecord(ctx context.Context, key stock.Key) (*stock.Record, error) {
	m := new(stockRecordModel)
	err := s.pg.NewSelect(m).
		Where("variant_id = $1", key.VariantID).
		Where("location_id = $2", key.LocationID.String()).
		Scan(ctx)
	if isNoRows(err) {
		return nil, stock.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("allot/postgres: get stock record: %w", err)
	}
	return fromStockRecordModel(m)
}

func (s *Store) ListStockRecords(ctx context.Context, opts stock.ListOpts) ([]*stock.Record, error) {
	var models []stockRecordModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.VariantID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("variant_id = $%d", argIdx), opts.VariantID)
	}
	if !opts.LocationID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("location_id = $%d", argIdx), opts.LocationID.String())
	}
	if opts.DemandID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("reservations ? $%d", argIdx), opts.DemandID)
	}
	q = q.OrderExpr("variant_id ASC, location_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/postgres: list stock records: %w", err)
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

// MutateStockRecord locks the row, applies fn and writes the record and its
// movement in one transaction. A nil movement commits nothing.
func (s *Store) MutateStockRecord(ctx context.Context, key stock.Key, fn stock.MutateFunc) (*stock.Record, error) {
	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("allot/postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := new(stockRecordModel)
	err = tx.NewSelect(m).
		Where("variant_id = $1", key.VariantID).
		Where("location_id = $2", key.LocationID.String()).
		ForUpdate().
		Scan(ctx)
	if isNoRows(err) {
		return nil, stock.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("allot/postgres: lock stock record: %w", err)
	}
	r, err := fromStockRecordModel(m)
	if err != nil {
		return nil, err
	}

	mv, err := fn(r)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return r, nil
	}

	r.Version++
	next := toStockRecordModel(r)
	if _, err := tx.NewUpdate(next).
		Column("on_hand", "reservations", "backorderable", "version", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("allot/postgres: update stock record: %w", err)
	}
	if _, err := tx.NewInsert(toMovementModel(mv)).Exec(ctx); err != nil {
		return nil, fmt.Errorf("allot/postgres: insert movement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("allot/postgres: commit: %w", err)
	}
	return r, nil
}

func (s *Store) ListMovements(ctx context.Context, key stock.Key, limit int) ([]*stock.Movement, error) {
	var models []movementModel
	q := s.pg.NewSelect(&models).
		Where("variant_id = $1", key.VariantID).
		Where("location_id = $2", key.LocationID.String()).
		OrderExpr("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/postgres: list movements: %w", err)
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
		return fmt.Errorf("allot/postgres: encode pickup: %w", err)
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return pickup.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("allot/postgres: create pickup: %w", err)
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
	err := s.pg.NewSelect(m).
		Where(column+" = $1", value).
		Scan(ctx)
	if isNoRows(err) {
		return nil, pickup.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("allot/postgres: get pickup: %w", err)
	}
	return fromPickupModel(m)
}

// UpdatePickup writes t if the stored version still equals t.Version and
// bumps t.Version on success.
func (s *Store) UpdatePickup(ctx context.Context, t *pickup.Ticket) error {
	m, err := toPickupModel(t)
	if err != nil {
		return fmt.Errorf("allot/postgres: encode pickup: %w", err)
	}
	res, err := s.pg.NewUpdate(m).
		Set("state = $1", m.State).
		Set("lines = $2", m.Lines).
		Set("ready_at = $3", m.ReadyAt).
		Set("picked_up_at = $4", m.PickedUpAt).
		Set("cancelled_at = $5", m.CancelledAt).
		Set("cancel_reason = $6", m.CancelReason).
		Set("updated_at = $7", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = $8", m.ID).
		Where("version = $9", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/postgres: update pickup: %w", err)
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.OrderID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("order_id = $%d", argIdx), opts.OrderID)
	}
	if !opts.LocationID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("location_id = $%d", argIdx), opts.LocationID.String())
	}
	if opts.State != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("state = $%d", argIdx), string(opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/postgres: list pickups: %w", err)
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
		return fmt.Errorf("allot/postgres: encode transfer: %w", err)
	}
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("allot/postgres: create transfer: %w", err)
	}
	return nil
}

func (s *Store) GetTransfer(ctx context.Context, transferID id.TransferID) (*transfer.Order, error) {
	m := new(transferModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", transferID.String()).
		Scan(ctx)
	if isNoRows(err) {
		return nil, transfer.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("allot/postgres: get transfer: %w", err)
	}
	return fromTransferModel(m)
}

// UpdateTransfer writes o if the stored version still equals o.Version and
// bumps o.Version on success.
func (s *Store) UpdateTransfer(ctx context.Context, o *transfer.Order) error {
	m, err := toTransferModel(o)
	if err != nil {
		return fmt.Errorf("allot/postgres: encode transfer: %w", err)
	}
	res, err := s.pg.NewUpdate(m).
		Set("lines = $1", m.Lines).
		Set("state = $2", m.State).
		Set("requested_receive_by = $3", m.RequestedReceiveBy).
		Set("initiated_at = $4", m.InitiatedAt).
		Set("received_at = $5", m.ReceivedAt).
		Set("cancelled_at = $6", m.CancelledAt).
		Set("updated_at = $7", m.UpdatedAt).
		Set("version = version + 1").
		Where("id = $8", m.ID).
		Where("version = $9", m.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/postgres: update transfer: %w", err)
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.LocationID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("(source_id = $%d OR destination_id = $%d)", argIdx, argIdx), opts.LocationID.String())
	}
	if opts.State != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("state = $%d", argIdx), string(opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/postgres: list transfers: %w", err)
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

// isNoRows checks for the standard sql.ErrNoRows sentinel, which pgx.ErrNoRows wraps.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
