package orders

import (
	"fmt"
	"time"

	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
)

// StateMachine is the single authority for order status transitions and
// phase timestamps. It never persists; callers own the transaction that
// stores the mutated order together with the returned history row.
type StateMachine struct {
	now func() time.Time
}

// NewStateMachine builds a machine using wall-clock time.
func NewStateMachine() *StateMachine {
	return &StateMachine{now: func() time.Time { return time.Now().UTC() }}
}

// NewStateMachineWithClock overrides the clock; test use only.
func NewStateMachineWithClock(now func() time.Time) *StateMachine {
	return &StateMachine{now: now}
}

// Apply validates the transition and mutates the order in place. On an
// invalid move the order is left untouched and a STATE_CONFLICT error is
// returned.
//
// Phase timestamps record first entry into a status, not the most recent
// change: AssignedAt, PickedUpAt and DeliveredAt are set once and never
// overwritten. The one exception is an unassignment (assigned -> pending),
// which clears AssignedAt because the assignment never effectively happened.
func (m *StateMachine) Apply(order *models.Order, target enums.OrderStatus, notes string) (*models.OrderStatusHistory, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", target))
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition order from %s to %s", order.Status, target),
		).WithDetails(map[string]any{
			"current_status":   order.Status,
			"allowed_statuses": order.Status.NextStatuses(),
		})
	}

	now := m.now()

	if order.Status == enums.OrderStatusAssigned && target == enums.OrderStatusPending {
		order.AssignedAt = nil
	}

	switch target {
	case enums.OrderStatusAssigned:
		if order.AssignedAt == nil {
			stamp := now
			order.AssignedAt = &stamp
		}
	case enums.OrderStatusPickedUp:
		if order.PickedUpAt == nil {
			stamp := now
			order.PickedUpAt = &stamp
		}
	case enums.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			stamp := now
			order.DeliveredAt = &stamp
		}
	}

	order.Status = target
	order.UpdatedAt = now

	return &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    target,
		Notes:     notes,
		CreatedAt: now,
	}, nil
}
