package models

import (
	"time"

	"github.com/fleetline/dispatch-backend/pkg/enums"
)

// User is the account a caller authenticates as. Credentials live in the
// external auth system; the dispatch core only reads role/active/device token.
type User struct {
	ID          int64          `gorm:"primaryKey"`
	Name        string         `gorm:"type:text;not null"`
	Phone       string         `gorm:"type:text"`
	Role        enums.UserRole `gorm:"type:user_role;not null"`
	Active      bool           `gorm:"not null;default:true"`
	DeviceToken *string        `gorm:"type:text"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;default:now()"`
	UpdatedAt   time.Time      `gorm:"type:timestamptz;default:now()"`
}
