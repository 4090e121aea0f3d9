package models

import "time"

// Warehouse is referenced by orders and drivers; its CRUD surface lives
// outside the dispatch core.
type Warehouse struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;default:now()"`
}
