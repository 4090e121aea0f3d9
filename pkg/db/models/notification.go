package models

import (
	"time"

	"github.com/fleetline/dispatch-backend/pkg/enums"
	"github.com/fleetline/dispatch-backend/pkg/types"
)

// Notification stores in-app notification payloads scoped to users.
// SentAt is stamped by the dispatcher once a push delivery attempt succeeds.
type Notification struct {
	ID        int64                  `gorm:"primaryKey"`
	UserID    int64                  `gorm:"not null;index"`
	Type      enums.NotificationType `gorm:"type:notification_type;not null"`
	Title     string                 `gorm:"type:text;not null"`
	Body      string                 `gorm:"type:text;not null"`
	Data      types.JSONMap          `gorm:"type:jsonb"`
	ReadAt    *time.Time             `gorm:"type:timestamptz"`
	SentAt    *time.Time             `gorm:"type:timestamptz"`
	CreatedAt time.Time              `gorm:"type:timestamptz;default:now()"`
}
