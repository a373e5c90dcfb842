// Package memory is an in-process store for tests and single-node use.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/internal/keymutex"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/store"
	"github.com/xraph/allot/transfer"
)

var _ store.Store = (*Store)(nil)

// Store keeps everything in maps. Returned values are copies, so callers
// can mutate them freely.
type Store struct {
	mu sync.RWMutex

	locations map[string]*location.Location
	links     map[string]map[string]*location.StoreLink // store id -> location id

	records   map[string]*stock.Record // keyed by stock.Key.String()
	movements map[string][]*stock.Movement
	recordMu  keymutex.Map

	pickups map[string]*pickup.Ticket
	codes   map[string]string // code -> ticket id

	transfers map[string]*transfer.Order
}

// New returns an empty store.
func New() *Store {
	return &Store{
		locations: make(map[string]*location.Location),
		links:     make(map[string]map[string]*location.StoreLink),
		records:   make(map[string]*stock.Record),
		movements: make(map[string][]*stock.Movement),
		pickups:   make(map[string]*pickup.Ticket),
		codes:     make(map[string]string),
		transfers: make(map[string]*transfer.Order),
	}
}

// ──────────────────────────────────────────────────
// Locations
// ──────────────────────────────────────────────────

func (s *Store) CreateLocation(_ context.Context, l *location.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[l.ID.String()]; ok {
		return location.ErrLocationExists
	}
	s.locations[l.ID.String()] = cloneLocation(l)
	return nil
}

func (s *Store) GetLocation(_ context.Context, locationID id.LocationID) (*location.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.locations[locationID.String()]
	if !ok {
		return nil, location.ErrLocationNotFound
	}
	return cloneLocation(l), nil
}

func (s *Store) UpdateLocation(_ context.Context, l *location.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[l.ID.String()]; !ok {
		return location.ErrLocationNotFound
	}
	s.locations[l.ID.String()] = cloneLocation(l)
	return nil
}

func (s *Store) ListLocations(_ context.Context, opts location.ListOpts) ([]*location.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*location.Location, 0, len(s.locations))
	for _, l := range s.locations {
		if opts.Matches(l) {
			out = append(out, cloneLocation(l))
		}
	}
	location.SortByPriority(out)
	return store.Page(out, opts.Offset, opts.Limit), nil
}

func (s *Store) PutStoreLink(_ context.Context, link *location.StoreLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[link.LocationID.String()]; !ok {
		return location.ErrLocationNotFound
	}
	byLoc, ok := s.links[link.StoreID]
	if !ok {
		byLoc = make(map[string]*location.StoreLink)
		s.links[link.StoreID] = byLoc
	}
	c := *link
	byLoc[link.LocationID.String()] = &c
	return nil
}

func (s *Store) ListStoreLinks(_ context.Context, storeID string) ([]*location.StoreLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*location.StoreLink, 0, len(s.links[storeID]))
	for _, link := range s.links[storeID] {
		c := *link
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *location.StoreLink) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return a.LocationID.Compare(b.LocationID)
	})
	return out, nil
}

func (s *Store) DeleteStoreLink(_ context.Context, storeID string, locationID id.LocationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[storeID][locationID.String()]; !ok {
		return location.ErrLinkNotFound
	}
	delete(s.links[storeID], locationID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Stock
// ──────────────────────────────────────────────────

func (s *Store) CreateStockRecord(_ context.Context, r *stock.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Key().String()
	if _, ok := s.records[key]; ok {
		return stock.ErrRecordExists
	}
	s.records[key] = r.Clone()
	return nil
}

func (s *Store) GetStockRecord(_ context.Context, key stock.Key) (*stock.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key.String()]
	if !ok {
		return nil, stock.ErrRecordNotFound
	}
	return r.Clone(), nil
}

func (s *Store) ListStockRecords(_ context.Context, opts stock.ListOpts) ([]*stock.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*stock.Record, 0)
	for _, r := range s.records {
		if opts.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *stock.Record) int {
		if c := cmp.Compare(a.VariantID, b.VariantID); c != 0 {
			return c
		}
		return a.LocationID.Compare(b.LocationID)
	})
	return out, nil
}

// MutateStockRecord holds the record's key lock across read, fn and write,
// so mutations of one record are serialized while other records proceed.
func (s *Store) MutateStockRecord(_ context.Context, key stock.Key, fn stock.MutateFunc) (*stock.Record, error) {
	k := key.String()
	unlock := s.recordMu.Lock(k)
	defer unlock()

	s.mu.RLock()
	current, ok := s.records[k]
	var working *stock.Record
	if ok {
		working = current.Clone()
	}
	s.mu.RUnlock()
	if !ok {
		return nil, stock.ErrRecordNotFound
	}

	m, err := fn(working)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return working, nil
	}

	working.Version++
	s.mu.Lock()
	s.records[k] = working.Clone()
	mc := *m
	s.movements[k] = append(s.movements[k], &mc)
	s.mu.Unlock()
	return working, nil
}

func (s *Store) ListMovements(_ context.Context, key stock.Key, limit int) ([]*stock.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.movements[key.String()]
	out := make([]*stock.Movement, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		m := *history[i]
		out = append(out, &m)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Pickups
// ──────────────────────────────────────────────────

func (s *Store) CreatePickup(_ context.Context, t *pickup.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[t.Code]; taken {
		return pickup.ErrCodeTaken
	}
	s.pickups[t.ID.String()] = cloneTicket(t)
	s.codes[t.Code] = t.ID.String()
	return nil
}

func (s *Store) GetPickup(_ context.Context, ticketID id.PickupID) (*pickup.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.pickups[ticketID.String()]
	if !ok {
		return nil, pickup.ErrTicketNotFound
	}
	return cloneTicket(t), nil
}

func (s *Store) GetPickupByCode(_ context.Context, code string) (*pickup.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticketID, ok := s.codes[code]
	if !ok {
		return nil, pickup.ErrTicketNotFound
	}
	return cloneTicket(s.pickups[ticketID]), nil
}

func (s *Store) UpdatePickup(_ context.Context, t *pickup.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.pickups[t.ID.String()]
	if !ok {
		return pickup.ErrTicketNotFound
	}
	if current.Version != t.Version {
		return pickup.ErrConflict
	}
	t.Version++
	s.pickups[t.ID.String()] = cloneTicket(t)
	return nil
}

func (s *Store) ListPickups(_ context.Context, opts pickup.ListOpts) ([]*pickup.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*pickup.Ticket, 0)
	for _, t := range s.pickups {
		if opts.Matches(t) {
			out = append(out, cloneTicket(t))
		}
	}
	slices.SortFunc(out, func(a, b *pickup.Ticket) int { return a.ID.Compare(b.ID) })
	return store.Page(out, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

func (s *Store) CreateTransfer(_ context.Context, o *transfer.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transfers[o.ID.String()] = cloneOrder(o)
	return nil
}

func (s *Store) GetTransfer(_ context.Context, transferID id.TransferID) (*transfer.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.transfers[transferID.String()]
	if !ok {
		return nil, transfer.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) UpdateTransfer(_ context.Context, o *transfer.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.transfers[o.ID.String()]
	if !ok {
		return transfer.ErrOrderNotFound
	}
	if current.Version != o.Version {
		return transfer.ErrConflict
	}
	o.Version++
	s.transfers[o.ID.String()] = cloneOrder(o)
	return nil
}

func (s *Store) ListTransfers(_ context.Context, opts transfer.ListOpts) ([]*transfer.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*transfer.Order, 0)
	for _, o := range s.transfers {
		if opts.Matches(o) {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b *transfer.Order) int { return a.ID.Compare(b.ID) })
	return store.Page(out, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error    { return nil }
func (s *Store) Close() error                  { return nil }

func cloneLocation(l *location.Location) *location.Location {
	c := *l
	c.Capabilities.SupportedServices = slices.Clone(l.Capabilities.SupportedServices)
	if l.Coordinates != nil {
		coords := *l.Coordinates
		c.Coordinates = &coords
	}
	return &c
}

func cloneTicket(t *pickup.Ticket) *pickup.Ticket {
	c := *t
	c.Lines = slices.Clone(t.Lines)
	return &c
}

func cloneOrder(o *transfer.Order) *transfer.Order {
	c := *o
	c.Lines = slices.Clone(o.Lines)
	return &c
}
