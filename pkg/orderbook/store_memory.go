package orderbook

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	mu    sync.Mutex
	order Order
}

// MemoryStore keeps the ledger in process memory: a map of entries with
// a per-order lock, behind a single counter lock that makes id
// assignment atomic with the append.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[uint64]*memoryEntry
	nextID uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[uint64]*memoryEntry),
		nextID: 1,
	}
}

func (s *MemoryStore) Append(ctx context.Context, order *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.ID = s.nextID
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	s.orders[order.ID] = &memoryEntry{order: *order}
	s.nextID++
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uint64) (*Order, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	snapshot := entry.order
	return &snapshot, nil
}

func (s *MemoryStore) NextOrderID(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID, nil
}

func (s *MemoryStore) Mutate(ctx context.Context, id uint64, fn func(o *Order) error) (*Order, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// fn works on a copy; the stored record changes only on success.
	working := entry.order
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()
	entry.order = working
	snapshot := working
	return &snapshot, nil
}

func (s *MemoryStore) entry(id uint64) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return entry, nil
}
