package orderbook

import "time"

type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Order is one ledger entry. Only Filled and Active ever change after
// creation; everything else is immutable once the order is appended.
type Order struct {
	ID      uint64 `gorm:"primaryKey"`
	Maker   string `gorm:"index"`
	TokenID uint64 `gorm:"index"`
	IsBuy   bool
	Price   int64 // stablecoin micro-units per credit, 6 decimal places
	Amount  int64
	Filled  int64
	Active  bool `gorm:"index"`

	// Reserved fields, zero-valued in the observed call surface.
	Expiry       int64 // unix seconds, 0 = never expires
	Salt         uint64
	Counterparty string // empty = open to any filler

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) Side() Side {
	if o.IsBuy {
		return BUY
	}
	return SELL
}

func (o *Order) Remaining() int64 {
	return o.Amount - o.Filled
}

// Fillable reports whether the order can accept a fill at time now. An
// expired order behaves as inactive for fills while staying queryable.
func (o *Order) Fillable(now time.Time) bool {
	if !o.Active {
		return false
	}
	if o.Expiry != 0 && now.Unix() >= o.Expiry {
		return false
	}
	return true
}
