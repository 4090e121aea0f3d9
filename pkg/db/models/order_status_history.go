package models

import (
	"time"

	"github.com/fleetline/dispatch-backend/pkg/enums"
)

// OrderStatusHistory is an append-only audit row written once per status
// transition. Rows are never updated or deleted individually; they cascade
// with their order.
type OrderStatusHistory struct {
	ID        int64             `gorm:"primaryKey"`
	OrderID   int64             `gorm:"not null;index"`
	Status    enums.OrderStatus `gorm:"type:order_status;not null"`
	Notes     string            `gorm:"type:text"`
	CreatedAt time.Time         `gorm:"type:timestamptz;default:now()"`
}
