package models

import (
	"time"

	"github.com/fleetline/dispatch-backend/pkg/types"
)

// DriverLocation is one accepted GPS sample. The table is an append-only
// time series; rows are superseded by newer ones and pruned by retention.
type DriverLocation struct {
	ID         int64          `gorm:"primaryKey"`
	DriverID   int64          `gorm:"not null;index:idx_driver_locations_driver_recorded"`
	Point      types.GeoPoint `gorm:"type:geography(Point,4326);not null"`
	RecordedAt time.Time      `gorm:"type:timestamptz;not null;index:idx_driver_locations_driver_recorded"`
	CreatedAt  time.Time      `gorm:"type:timestamptz;default:now()"`
}
