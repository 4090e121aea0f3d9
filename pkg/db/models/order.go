package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetline/dispatch-backend/pkg/enums"
)

// Order is a delivery order tracked through the dispatch lifecycle.
//
// Phase timestamps (AssignedAt, PickedUpAt, DeliveredAt) record the first
// entry into their status and are never overwritten; only an explicit
// unassignment clears AssignedAt.
type Order struct {
	ID            int64               `gorm:"primaryKey"`
	Reference     string              `gorm:"type:text;not null;uniqueIndex"`
	Status        enums.OrderStatus   `gorm:"type:order_status;not null;default:pending"`
	DriverID      *int64              `gorm:"index"`
	Total         decimal.Decimal     `gorm:"type:numeric(12,2);not null"`
	PaymentMethod enums.PaymentMethod `gorm:"type:payment_method;not null"`
	WarehouseID   int64               `gorm:"not null;index"`
	Notes         string              `gorm:"type:text"`
	Archived      bool                `gorm:"not null;default:false"`
	AssignedAt    *time.Time          `gorm:"type:timestamptz"`
	PickedUpAt    *time.Time          `gorm:"type:timestamptz"`
	DeliveredAt   *time.Time          `gorm:"type:timestamptz"`
	CreatedAt     time.Time           `gorm:"type:timestamptz;default:now()"`
	UpdatedAt     time.Time           `gorm:"type:timestamptz;default:now()"`

	Driver  *Driver              `gorm:"foreignKey:DriverID"`
	History []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}
