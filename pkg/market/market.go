package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/evergrid/creditbook/pkg/logging"
	"github.com/evergrid/creditbook/pkg/orderbook"
)

// Book is the open side of the ledger partitioned for display: bids
// best-first (highest price), asks best-first (lowest price).
type Book struct {
	Buys  []*orderbook.Order `json:"buys"`
	Sells []*orderbook.Order `json:"sells"`
}

// Service is the read side of the ledger. It scans a bounded window of
// recent ids rather than the whole ledger; orders older than the window
// are deliberately out of view, which is acceptable because inactive
// records never change and the ledger only grows.
type Service struct {
	store  orderbook.Store
	cache  *redis.Client // optional
	window uint64
	ttl    time.Duration
	log    *logging.Logger
	now    func() time.Time
}

func NewService(store orderbook.Store, cache *redis.Client, window uint64, cacheTTL time.Duration, log *logging.Logger) *Service {
	if window == 0 {
		window = 500
	}
	return &Service{
		store:  store,
		cache:  cache,
		window: window,
		ttl:    cacheTTL,
		log:    log,
		now:    time.Now,
	}
}

// LoadActiveOrders returns the open book, optionally filtered to one
// credit batch.
func (s *Service) LoadActiveOrders(ctx context.Context, tokenFilter *uint64) (*Book, error) {
	key := bookCacheKey(tokenFilter)
	if book := s.cachedBook(ctx, key); book != nil {
		return book, nil
	}

	// Fillable, not the raw Active flag: an expired order rejects fills,
	// so it must not be shown as open either.
	asOf := s.now()
	book := &Book{Buys: []*orderbook.Order{}, Sells: []*orderbook.Order{}}
	err := s.scan(ctx, func(o *orderbook.Order) {
		if !o.Fillable(asOf) {
			return
		}
		if tokenFilter != nil && o.TokenID != *tokenFilter {
			return
		}
		if o.IsBuy {
			book.Buys = append(book.Buys, o)
		} else {
			book.Sells = append(book.Sells, o)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(book.Buys, func(i, j int) bool {
		if book.Buys[i].Price != book.Buys[j].Price {
			return book.Buys[i].Price > book.Buys[j].Price
		}
		return book.Buys[i].ID < book.Buys[j].ID
	})
	sort.Slice(book.Sells, func(i, j int) bool {
		if book.Sells[i].Price != book.Sells[j].Price {
			return book.Sells[i].Price < book.Sells[j].Price
		}
		return book.Sells[i].ID < book.Sells[j].ID
	})

	s.storeBook(ctx, key, book)
	return book, nil
}

// LoadCompletedOrders returns inactive orders in the window, most recent
// first.
func (s *Service) LoadCompletedOrders(ctx context.Context) ([]*orderbook.Order, error) {
	completed := []*orderbook.Order{}
	err := s.scan(ctx, func(o *orderbook.Order) {
		if !o.Active {
			completed = append(completed, o)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].ID > completed[j].ID
	})
	return completed, nil
}

// Invalidate drops cached book renderings; called whenever the ledger
// changes.
func (s *Service) Invalidate(ctx context.Context, tokenID uint64) {
	if s.cache == nil {
		return
	}
	keys := []string{bookCacheKey(nil), bookCacheKey(&tokenID)}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn(ctx, "book cache invalidation failed", zap.Error(err))
	}
}

func (s *Service) scan(ctx context.Context, visit func(o *orderbook.Order)) error {
	next, err := s.store.NextOrderID(ctx)
	if err != nil {
		return err
	}

	lo := uint64(1)
	if next > s.window+1 {
		lo = next - s.window
	}
	for id := lo; id < next; id++ {
		order, err := s.store.Get(ctx, id)
		if errors.Is(err, orderbook.ErrOrderNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		visit(order)
	}
	return nil
}

func (s *Service) cachedBook(ctx context.Context, key string) *Book {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var book Book
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil
	}
	return &book
}

func (s *Service) storeBook(ctx context.Context, key string, book *Book) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(book)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.log.Warn(ctx, "book cache write failed", zap.Error(err))
	}
}

func bookCacheKey(tokenFilter *uint64) string {
	if tokenFilter == nil {
		return "book:all"
	}
	return fmt.Sprintf("book:%d", *tokenFilter)
}
