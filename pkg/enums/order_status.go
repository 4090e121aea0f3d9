package enums

import "fmt"

// OrderStatus maps to the order_status enum in Postgres.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusAssigned       OrderStatus = "assigned"
	OrderStatusPickedUp       OrderStatus = "picked_up"
	OrderStatusInTransit      OrderStatus = "in_transit"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusRejected       OrderStatus = "rejected"
	OrderStatusReturned       OrderStatus = "returned"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAssigned,
	OrderStatusPickedUp,
	OrderStatusInTransit,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusRejected,
	OrderStatusReturned,
	OrderStatusCancelled,
}

// orderStatusTransitions is the single source of truth for the order
// lifecycle. Returned and cancelled are terminal; rejected loops back to
// pending so the order can be reassigned.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusAssigned, OrderStatusCancelled},
	OrderStatusAssigned:       {OrderStatusPending, OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusPickedUp:       {OrderStatusInTransit, OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusInTransit:      {OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusDelivered:      {OrderStatusReturned},
	OrderStatusRejected:       {OrderStatusPending},
	OrderStatusReturned:       {},
	OrderStatusCancelled:      {},
}

// IsValid checks whether the value matches the canonical enum.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s OrderStatus) IsTerminal() bool {
	next, ok := orderStatusTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the lifecycle allows moving to target.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, candidate := range orderStatusTransitions[s] {
		if candidate == target {
			return true
		}
	}
	return false
}

// NextStatuses returns a copy of the allowed transitions out of s.
func (s OrderStatus) NextStatuses() []OrderStatus {
	next := orderStatusTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// ParseOrderStatus converts raw strings into OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
