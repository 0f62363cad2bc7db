package orderbook

import "context"

// Store is the authoritative order ledger: an append-only sequence keyed
// by a strictly increasing id. Ids are assigned atomically with the
// append and never reused; records are never deleted.
type Store interface {
	// Append assigns the next id and persists the order. All-or-nothing:
	// on error no id is consumed.
	Append(ctx context.Context, order *Order) error

	// Get returns a snapshot of the order. ErrOrderNotFound if the id
	// was never assigned.
	Get(ctx context.Context, id uint64) (*Order, error)

	// NextOrderID returns the id the next Append will assign.
	NextOrderID(ctx context.Context) (uint64, error)

	// Mutate runs fn against the current record with all other mutations
	// of the same order excluded, so fn sees Filled/Active at commit
	// time, not a stale read. fn's changes persist only when it returns
	// nil; on error the stored record is untouched. Returns the record
	// as persisted.
	Mutate(ctx context.Context, id uint64, fn func(o *Order) error) (*Order, error)
}
