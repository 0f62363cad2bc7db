package orderbook

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore persists the ledger in Postgres. Per-order serialization
// comes from a row lock held for the duration of Mutate.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *SQLStore) Append(ctx context.Context, order *Order) error {
	// id comes from the orders bigserial; assignment is atomic with the
	// insert, so concurrent appends never collide.
	return s.dbWithContext(ctx).Create(order).Error
}

func (s *SQLStore) Get(ctx context.Context, id uint64) (*Order, error) {
	var order Order
	err := s.dbWithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *SQLStore) NextOrderID(ctx context.Context) (uint64, error) {
	var maxID uint64
	err := s.dbWithContext(ctx).
		Model(&Order{}).
		Select("COALESCE(MAX(id), 0)").
		Scan(&maxID).Error
	if err != nil {
		return 0, err
	}
	return maxID + 1, nil
}

func (s *SQLStore) Mutate(ctx context.Context, id uint64, fn func(o *Order) error) (*Order, error) {
	var result *Order
	err := s.dbWithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		if err := fn(&order); err != nil {
			return err
		}

		if err := tx.Model(&Order{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"filled": order.Filled,
				"active": order.Active,
			}).Error; err != nil {
			return err
		}

		result = &order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
