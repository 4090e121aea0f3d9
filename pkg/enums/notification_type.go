package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOrderAssigned   NotificationType = "order_assigned"
	NotificationTypeOrderReassigned NotificationType = "order_reassigned"
	NotificationTypeOrderStatus     NotificationType = "order_status"
	NotificationTypeShiftLimit      NotificationType = "shift_limit"
	NotificationTypeSystem          NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderAssigned,
	NotificationTypeOrderReassigned,
	NotificationTypeOrderStatus,
	NotificationTypeShiftLimit,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
