package orderbook

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStoreIDsStrictlyIncrease(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.NextOrderID(ctx)
	if err != nil {
		t.Fatalf("nextOrderID: %v", err)
	}

	const n = 50
	for i := 0; i < n; i++ {
		order := &Order{Maker: "alice", TokenID: 1, Price: 1, Amount: 1, Active: true}
		if err := store.Append(ctx, order); err != nil {
			t.Fatalf("append: %v", err)
		}
		if order.ID != first+uint64(i) {
			t.Fatalf("order %d got id %d, want %d", i, order.ID, first+uint64(i))
		}
	}

	next, _ := store.NextOrderID(ctx)
	if next != first+n {
		t.Errorf("nextOrderID after %d appends = %d, want %d", n, next, first+n)
	}
}

func TestMemoryStoreConcurrentAppendsUniqueIDs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const n = 200
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order := &Order{Maker: "alice", TokenID: 1, Price: 1, Amount: 1, Active: true}
			if err := store.Append(ctx, order); err != nil {
				t.Errorf("append: %v", err)
				return
			}
			ids[i] = order.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestMemoryStoreMutateRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	order := &Order{Maker: "alice", TokenID: 1, Price: 1, Amount: 100, Active: true}
	if err := store.Append(ctx, order); err != nil {
		t.Fatalf("append: %v", err)
	}

	boom := errors.New("boom")
	_, err := store.Mutate(ctx, order.ID, func(o *Order) error {
		o.Filled = 42
		o.Active = false
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := store.Get(ctx, order.ID)
	if got.Filled != 0 || !got.Active {
		t.Errorf("failed mutation leaked: filled=%d active=%v", got.Filled, got.Active)
	}
}

func TestMemoryStoreGetReturnsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	order := &Order{Maker: "alice", TokenID: 1, Price: 1, Amount: 100, Active: true}
	if err := store.Append(ctx, order); err != nil {
		t.Fatalf("append: %v", err)
	}

	snap, _ := store.Get(ctx, order.ID)
	snap.Filled = 99

	fresh, _ := store.Get(ctx, order.ID)
	if fresh.Filled != 0 {
		t.Error("mutating a snapshot changed the stored record")
	}
}

func TestMemoryStoreUnknownID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, 7); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("get: expected ErrOrderNotFound, got %v", err)
	}
	if _, err := store.Mutate(ctx, 7, func(o *Order) error { return nil }); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("mutate: expected ErrOrderNotFound, got %v", err)
	}
}
