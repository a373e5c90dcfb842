package stock

import "context"

// MutateFunc applies one transition to a record. It receives a private copy
// and returns the movement describing the change. A nil movement means the
// call was a no-op and nothing is written. An error aborts the mutation.
type MutateFunc func(r *Record) (*Movement, error)

// Store persists stock records and their movement history.
//
// MutateStockRecord is the only write path for existing records. Backends
// must make the read, fn and the write of both the record and its movement
// atomic with respect to other mutations of the same key, and must bump
// Version on every write. Mutations of different keys must not block each
// other.
type Store interface {
	CreateStockRecord(ctx context.Context, r *Record) error
	GetStockRecord(ctx context.Context, key Key) (*Record, error)
	ListStockRecords(ctx context.Context, opts ListOpts) ([]*Record, error)
	MutateStockRecord(ctx context.Context, key Key, fn MutateFunc) (*Record, error)
	ListMovements(ctx context.Context, key Key, limit int) ([]*Movement, error)
}
