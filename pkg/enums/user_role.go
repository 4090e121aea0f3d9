package enums

import "fmt"

// UserRole maps to the user_role enum in Postgres.
type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleManager    UserRole = "manager"
	UserRoleDispatcher UserRole = "dispatcher"
	UserRoleDriver     UserRole = "driver"
)

var validUserRoles = []UserRole{
	UserRoleAdmin,
	UserRoleManager,
	UserRoleDispatcher,
	UserRoleDriver,
}

// DispatchStaffRoles are the roles notified about assignment activity and
// allowed to manage orders.
var DispatchStaffRoles = []UserRole{UserRoleAdmin, UserRoleManager, UserRoleDispatcher}

// IsValid checks whether the value matches the canonical enum.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether r appears in the allowed set.
func (r UserRole) HasAnyRole(allowed ...UserRole) bool {
	for _, candidate := range allowed {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw strings into UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
