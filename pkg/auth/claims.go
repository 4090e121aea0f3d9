package auth

import (
	"github.com/fleetline/dispatch-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// Actor is the already-validated caller identity every core operation
// receives. Credential verification happens upstream; the dispatch core only
// consumes the result.
//
// WarehouseIDs is the actor's warehouse scope: nil means unrestricted, a
// non-nil set limits which warehouses the actor may act on.
type Actor struct {
	UserID       int64
	Role         enums.UserRole
	WarehouseIDs []int64
}

// IsDispatchStaff reports whether the actor may manage orders and receive
// assignment activity.
func (a Actor) IsDispatchStaff() bool {
	return a.Role.HasAnyRole(enums.DispatchStaffRoles...)
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	UserID       int64          `json:"user_id"`
	Role         enums.UserRole `json:"role"`
	WarehouseIDs []int64        `json:"warehouse_ids,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into the caller identity.
func (c *AccessTokenClaims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role, WarehouseIDs: c.WarehouseIDs}
}
