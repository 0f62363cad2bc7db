package journal

import (
	"context"

	"gorm.io/gorm"
)

type IOrderEvent interface {
	Create(ctx context.Context, record *OrderEvent) (*OrderEvent, error)
	BulkCreate(ctx context.Context, records []*OrderEvent) ([]*OrderEvent, error)
}

type OrderEventSQLRepo struct {
	db *gorm.DB
}

func NewOrderEventSQLRepo(db *gorm.DB) *OrderEventSQLRepo {
	return &OrderEventSQLRepo{
		db: db,
	}
}

func (r *OrderEventSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *OrderEventSQLRepo) Create(ctx context.Context, record *OrderEvent) (*OrderEvent, error) {
	return record, r.dbWithContext(ctx).Create(record).Error
}

func (r *OrderEventSQLRepo) BulkCreate(ctx context.Context, records []*OrderEvent) ([]*OrderEvent, error) {
	return records, r.dbWithContext(ctx).Create(records).Error
}
