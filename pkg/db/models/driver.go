package models

import (
	"time"

	"github.com/fleetline/dispatch-backend/pkg/enums"
)

// Driver is a courier profile owned 1:1 by a user account.
// Available == true implies LastOnlineAt is set.
type Driver struct {
	ID           int64             `gorm:"primaryKey"`
	UserID       int64             `gorm:"not null;uniqueIndex"`
	WarehouseID  *int64            `gorm:"index"`
	Code         string            `gorm:"type:text;not null"`
	Vehicle      enums.VehicleType `gorm:"type:vehicle_type;not null"`
	Available    bool              `gorm:"not null;default:false"`
	LastOnlineAt *time.Time        `gorm:"type:timestamptz"`
	CreatedAt    time.Time         `gorm:"type:timestamptz;default:now()"`
	UpdatedAt    time.Time         `gorm:"type:timestamptz;default:now()"`

	User *User `gorm:"foreignKey:UserID"`
}
