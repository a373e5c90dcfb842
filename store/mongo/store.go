// Package mongo implements store.Store on MongoDB via Grove ORM.
//
// MutateStockRecord runs inside a multi-document transaction, so the
// server must be a replica set or a sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/store"
	"github.com/xraph/allot/transfer"
)

// Collection name constants.
const (
	colLocations  = "allot_locations"
	colStoreLinks = "allot_store_links"
	colStock      = "allot_stock_records"
	colMovements  = "allot_movements"
	colPickups    = "allot_pickups"
	colTransfers  = "allot_transfers"
)

// ErrContention is returned when a stock record changed between the read
// and the write of a MutateStockRecord transaction.
var ErrContention = errors.New("allot/mongo: stock record contention")

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Open connects to uri and uses the named database. An empty database
// falls back to the database in the URI path.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	var opts []mongodriver.MongoOption
	if database != "" {
		opts = append(opts, mongodriver.WithDatabase(database))
	}
	drv := mongodriver.New()
	if err := drv.Open(ctx, uri, opts...); err != nil {
		return nil, fmt.Errorf("allot/mongo: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("allot/mongo: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all allot collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("allot/mongo: migrate %s indexes: %w", col, err)
		}
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

// ==================== Location Store ====================

func (s *Store) CreateLocation(ctx context.Context, l *location.Location) error {
	_, err := s.mdb.NewInsert(toLocationModel(l)).Exec(ctx)
	if mongo.IsDuplicateKeyError(err) {
		return location.ErrLocationExists
	}
	if err != nil {
		return fmt.Errorf("allot/mongo: create location: %w", err)
	}
	return nil
}

func (s *Store) GetLocation(ctx context.Context, locationID id.LocationID) (*location.Location, error) {
	var m locationModel
	err := s.mdb.NewFind(&m).Filter(bson.M{"_id": locationID.String()}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, location.ErrLocationNotFound
		}
		return nil, fmt.Errorf("allot/mongo: get location: %w", err)
	}
	return fromLocationModel(&m)
}

func (s *Store) UpdateLocation(ctx context.Context, l *location.Location) error {
	m := toLocationModel(l)
	res, err := s.mdb.NewUpdate((*locationModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		Set("name", m.Name).
		Set("type", m.Type).
		Set("capabilities", m.Capabilities).
		Set("priority", m.Priority).
		Set("active", m.Active).
		Set("coordinates", m.Coordinates).
		Set("metadata", m.Metadata).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/mongo: update location: %w", err)
	}
	if res.MatchedCount() == 0 {
		return location.ErrLocationNotFound
	}
	return nil
}

func (s *Store) ListLocations(ctx context.Context, opts location.ListOpts) ([]*location.Location, error) {
	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}
	if len(opts.Types) > 0 {
		kinds := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			kinds[i] = string(t)
		}
		filter["type"] = bson.M{"$in": kinds}
	}

	var models []locationModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "priority", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/mongo: list locations: %w", err)
	}
	out := make([]*location.Location, 0, len(models))
	for i := range models {
		l, err := fromLocationModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) PutStoreLink(ctx context.Context, link *location.StoreLink) error {
	n, err := s.mdb.NewFind((*locationModel)(nil)).
		Filter(bson.M{"_id": link.LocationID.String()}).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("allot/mongo: put store link: %w", err)
	}
	if n == 0 {
		return location.ErrLocationNotFound
	}
	m := toStoreLinkModel(link)
	_, err = s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/mongo: put store link: %w", err)
	}
	return nil
}

func (s *Store) ListStoreLinks(ctx context.Context, storeID string) ([]*location.StoreLink, error) {
	var models []storeLinkModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"store_id": storeID}).
		Sort(bson.D{{Key: "priority", Value: 1}, {Key: "location_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("allot/mongo: list store links: %w", err)
	}
	out := make([]*location.StoreLink, 0, len(models))
	for i := range models {
		link, err := fromStoreLinkModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, nil
}

func (s *Store) DeleteStoreLink(ctx context.Context, storeID string, locationID id.LocationID) error {
	res, err := s.mdb.NewDelete((*storeLinkModel)(nil)).
		Filter(bson.M{"_id": linkKey(storeID, locationID)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/mongo: delete store link: %w", err)
	}
	if res.DeletedCount() == 0 {
		return location.ErrLinkNotFound
	}
	return nil
}

// ==================== Stock Store ====================

func (s *Store) CreateStockRecord(ctx context.Context, r *stock.Record) error {
	_, err := s.mdb.NewInsert(toStockRecordModel(r)).Exec(ctx)
	if mongo.IsDuplicateKeyError(err) {
		return stock.ErrRecordExists
	}
	if err != nil {
		return fmt.Errorf("allot/mongo: create stock record: %w", err)
	}
	return nil
}

func (s *Store) GetStockRecord(ctx context.Context, key stock.Key) (*stock.Record, error) {
	var m stockRecordModel
	err := s.mdb.NewFind(&m).Filter(bson.M{"_id": key.String()}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stock.ErrRecordNotFound
		}
		return nil, fmt.Errorf("allot/mongo: get stock record: %w", err)
	}
	return fromStockRecordModel(&m)
}

func (s *Store) ListStockRecords(ctx context.Context, opts stock.ListOpts) ([]*stock.Record, error) {
	filter := bson.M{}
	if opts.VariantID != "" {
		filter["variant_id"] = opts.VariantID
	}
	if !opts.LocationID.IsNil() {
		filter["location_id"] = opts.LocationID.String()
	}
	if opts.DemandID != "" {
		filter["reservations.demand_id"] = opts.DemandID
	}

	var models []stockRecordModel
	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "variant_id", Value: 1}, {Key: "location_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("allot/mongo: list stock records: %w", err)
	}
	out := make([]*stock.Record, 0, len(models))
	for i := range models {
		r, err := fromStockRecordModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// MutateStockRecord reads the record, applies fn, writes the record and
// appends the movement in one transaction. The driver retries the
// transaction on transient errors, so fn may run more than once and must
// only depend on the record it is given.
func (s *Store) MutateStockRecord(ctx context.Context, key stock.Key, fn stock.MutateFunc) (*stock.Record, error) {
	session, err := s.mdb.Client().StartSession()
	if err != nil {
		return nil, fmt.Errorf("allot/mongo: start session: %w", err)
	}
	defer session.EndSession(context.Background())

	out, err := session.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return s.mutateInTx(sc, key, fn)
	})
	if err != nil {
		return nil, err
	}
	return out.(*stock.Record), nil
}

func (s *Store) mutateInTx(ctx context.Context, key stock.Key, fn stock.MutateFunc) (*stock.Record, error) {
	r, err := s.GetStockRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	read := r.Version

	m, err := fn(r)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return r, nil
	}

	r.Version = read + 1
	res, err := s.mdb.NewUpdate(toStockRecordModel(r)).
		Filter(bson.M{"_id": key.String(), "version": read}).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("allot/mongo: update stock record: %w", err)
	}
	if res.MatchedCount() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrContention, key)
	}

	if _, err := s.mdb.NewInsert(toMovementModel(m, r.Version)).Exec(ctx); err != nil {
		return nil, fmt.Errorf("allot/mongo: insert movement: %w", err)
	}
	return r, nil
}

func (s *Store) ListMovements(ctx context.Context, key stock.Key, limit int) ([]*stock.Movement, error) {
	var models []movementModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{"record_id": key.String()}).
		Sort(bson.D{{Key: "record_version", Value: -1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/mongo: list movements: %w", err)
	}
	out := make([]*stock.Movement, 0, len(models))
	for i := range models {
		m, err := fromMovementModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ==================== Pickup Store ====================

func (s *Store) CreatePickup(ctx context.Context, t *pickup.Ticket) error {
	_, err := s.mdb.NewInsert(toPickupModel(t)).Exec(ctx)
	if mongo.IsDuplicateKeyError(err) {
		return pickup.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("allot/mongo: create pickup: %w", err)
	}
	return nil
}

func (s *Store) GetPickup(ctx context.Context, ticketID id.PickupID) (*pickup.Ticket, error) {
	return s.findPickup(ctx, bson.M{"_id": ticketID.String()})
}

func (s *Store) GetPickupByCode(ctx context.Context, code string) (*pickup.Ticket, error) {
	return s.findPickup(ctx, bson.M{"code": code})
}

func (s *Store) findPickup(ctx context.Context, filter bson.M) (*pickup.Ticket, error) {
	var m pickupModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, pickup.ErrTicketNotFound
		}
		return nil, fmt.Errorf("allot/mongo: get pickup: %w", err)
	}
	return fromPickupModel(&m)
}

func (s *Store) UpdatePickup(ctx context.Context, t *pickup.Ticket) error {
	m := toPickupModel(t)
	m.Version = t.Version + 1
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": t.Version}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/mongo: update pickup: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetPickup(ctx, t.ID); err != nil {
			return err
		}
		return pickup.ErrConflict
	}
	t.Version = m.Version
	return nil
}

func (s *Store) ListPickups(ctx context.Context, opts pickup.ListOpts) ([]*pickup.Ticket, error) {
	filter := bson.M{}
	if opts.OrderID != "" {
		filter["order_id"] = opts.OrderID
	}
	if !opts.LocationID.IsNil() {
		filter["location_id"] = opts.LocationID.String()
	}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	var models []pickupModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/mongo: list pickups: %w", err)
	}
	out := make([]*pickup.Ticket, 0, len(models))
	for i := range models {
		t, err := fromPickupModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ==================== Transfer Store ====================

func (s *Store) CreateTransfer(ctx context.Context, o *transfer.Order) error {
	if _, err := s.mdb.NewInsert(toTransferModel(o)).Exec(ctx); err != nil {
		return fmt.Errorf("allot/mongo: create transfer: %w", err)
	}
	return nil
}

func (s *Store) GetTransfer(ctx context.Context, transferID id.TransferID) (*transfer.Order, error) {
	var m transferModel
	err := s.mdb.NewFind(&m).Filter(bson.M{"_id": transferID.String()}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, transfer.ErrOrderNotFound
		}
		return nil, fmt.Errorf("allot/mongo: get transfer: %w", err)
	}
	return fromTransferModel(&m)
}

func (s *Store) UpdateTransfer(ctx context.Context, o *transfer.Order) error {
	m := toTransferModel(o)
	m.Version = o.Version + 1
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": o.Version}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("allot/mongo: update transfer: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetTransfer(ctx, o.ID); err != nil {
			return err
		}
		return transfer.ErrConflict
	}
	o.Version = m.Version
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, opts transfer.ListOpts) ([]*transfer.Order, error) {
	filter := bson.M{}
	if !opts.LocationID.IsNil() {
		loc := opts.LocationID.String()
		filter["$or"] = bson.A{bson.M{"source_id": loc}, bson.M{"destination_id": loc}}
	}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	var models []transferModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("allot/mongo: list transfers: %w", err)
	}
	out := make([]*transfer.Order, 0, len(models))
	for i := range models {
		o, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// ==================== Helpers ====================

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all allot collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colLocations: {
			{Keys: bson.D{{Key: "priority", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "active", Value: 1}}},
		},
		colStoreLinks: {
			{Keys: bson.D{{Key: "store_id", Value: 1}, {Key: "priority", Value: 1}}},
		},
		colStock: {
			{Keys: bson.D{{Key: "variant_id", Value: 1}, {Key: "location_id", Value: 1}}},
			{Keys: bson.D{{Key: "reservations.demand_id", Value: 1}}},
		},
		colMovements: {
			{
				Keys:    bson.D{{Key: "record_id", Value: 1}, {Key: "record_version", Value: -1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colPickups: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "order_id", Value: 1}}},
			{Keys: bson.D{{Key: "location_id", Value: 1}, {Key: "state", Value: 1}}},
		},
		colTransfers: {
			{Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "state", Value: 1}}},
			{Keys: bson.D{{Key: "destination_id", Value: 1}, {Key: "state", Value: 1}}},
		},
	}
}
