package journal

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventPlaced EventType = "Placed"
	EventFilled EventType = "Filled"
	EventClosed EventType = "Closed"
)

// OrderEvent records one ledger transition: an order appended, a fill
// committed, or an explicit close.
type OrderEvent struct {
	EventID   string `gorm:"primaryKey"`
	OrderID   uint64 `gorm:"index"`
	Type      EventType
	Maker     string
	Taker     string // empty for Placed/Closed
	TokenID   uint64
	IsBuy     bool
	Price     int64 // micro-units
	Qty       int64 // order amount for Placed, fill quantity for Filled
	Filled    int64 // cumulative after the transition
	Active    bool
	TxHash    string
	Timestamp time.Time
}

func (OrderEvent) TableName() string {
	return "order_events"
}

func NewEventID(orderID uint64, typ EventType, filled int64) string {
	return fmt.Sprintf("%d-%s-%d", orderID, typ, filled)
}
