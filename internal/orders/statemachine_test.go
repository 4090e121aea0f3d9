package orders

import (
	"testing"
	"time"

	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestApplyValidTransition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	machine := NewStateMachineWithClock(fixedClock(now))
	order := &models.Order{ID: 7, Status: enums.OrderStatusPending}

	history, err := machine.Apply(order, enums.OrderStatusAssigned, "picked by dispatcher")
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if order.Status != enums.OrderStatusAssigned {
		t.Fatalf("expected status assigned got %s", order.Status)
	}
	if order.AssignedAt == nil || !order.AssignedAt.Equal(now) {
		t.Fatalf("expected AssignedAt %v got %v", now, order.AssignedAt)
	}
	if history.OrderID != 7 || history.Status != enums.OrderStatusAssigned {
		t.Fatalf("unexpected history row %+v", history)
	}
	if history.Notes != "picked by dispatcher" {
		t.Fatalf("unexpected history notes %q", history.Notes)
	}
}

func TestApplyDisallowedTransitionLeavesOrderUntouched(t *testing.T) {
	machine := NewStateMachine()
	order := &models.Order{ID: 3, Status: enums.OrderStatusPending}

	_, err := machine.Apply(order, enums.OrderStatusDelivered, "")
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT got %v", err)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("status mutated on rejected transition: %s", order.Status)
	}
	if order.AssignedAt != nil || order.DeliveredAt != nil {
		t.Fatal("timestamps mutated on rejected transition")
	}
}

func TestApplyInvalidTargetStatus(t *testing.T) {
	machine := NewStateMachine()
	order := &models.Order{Status: enums.OrderStatusPending}

	_, err := machine.Apply(order, enums.OrderStatus("warp"), "")
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR got %v", err)
	}
}

func TestPhaseTimestampsAreSetOnce(t *testing.T) {
	first := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	machine := NewStateMachineWithClock(fixedClock(first))

	order := &models.Order{ID: 1, Status: enums.OrderStatusPending}
	mustApply(t, machine, order, enums.OrderStatusAssigned)
	mustApply(t, machine, order, enums.OrderStatusPickedUp)
	mustApply(t, machine, order, enums.OrderStatusDelivered)

	// Return and redeliver at a later time; the stamps must not move.
	later := first.Add(4 * time.Hour)
	machine = NewStateMachineWithClock(fixedClock(later))
	mustApply(t, machine, order, enums.OrderStatusReturned)

	if !order.PickedUpAt.Equal(first) {
		t.Fatalf("PickedUpAt moved to %v", order.PickedUpAt)
	}
	if !order.DeliveredAt.Equal(first) {
		t.Fatalf("DeliveredAt moved to %v", order.DeliveredAt)
	}
	if !order.AssignedAt.Equal(first) {
		t.Fatalf("AssignedAt moved to %v", order.AssignedAt)
	}
}

func TestUnassignClearsAssignedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	machine := NewStateMachineWithClock(fixedClock(now))

	order := &models.Order{ID: 2, Status: enums.OrderStatusPending}
	mustApply(t, machine, order, enums.OrderStatusAssigned)
	if order.AssignedAt == nil {
		t.Fatal("expected AssignedAt after assignment")
	}

	mustApply(t, machine, order, enums.OrderStatusPending)
	if order.AssignedAt != nil {
		t.Fatalf("expected AssignedAt cleared got %v", order.AssignedAt)
	}
}

func TestRejectedRequeueKeepsAssignedAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	machine := NewStateMachineWithClock(fixedClock(start))

	order := &models.Order{ID: 4, Status: enums.OrderStatusPending}
	mustApply(t, machine, order, enums.OrderStatusAssigned)
	mustApply(t, machine, order, enums.OrderStatusPickedUp)
	mustApply(t, machine, order, enums.OrderStatusRejected)
	mustApply(t, machine, order, enums.OrderStatusPending)

	// The order went back to the pool through a rejection, not an
	// unassignment, so its first-assignment stamp survives.
	if order.AssignedAt == nil || !order.AssignedAt.Equal(start) {
		t.Fatalf("expected AssignedAt %v got %v", start, order.AssignedAt)
	}
}

func TestApplyRandomWalkKeepsTableInvariants(t *testing.T) {
	machine := NewStateMachine()
	order := &models.Order{ID: 9, Status: enums.OrderStatusPending}

	// Exhaustively try every target from whatever state the walk is in;
	// the machine must agree with the transition table at each step.
	targets := []enums.OrderStatus{
		enums.OrderStatusAssigned, enums.OrderStatusPickedUp, enums.OrderStatusInTransit,
		enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered, enums.OrderStatusRejected,
		enums.OrderStatusReturned, enums.OrderStatusPending, enums.OrderStatusCancelled,
	}
	for i := 0; i < 50; i++ {
		target := targets[i%len(targets)]
		from := order.Status
		_, err := machine.Apply(order, target, "")
		if from.CanTransitionTo(target) {
			if err != nil {
				t.Fatalf("step %d: %s -> %s should succeed, got %v", i, from, target, err)
			}
			if order.Status != target {
				t.Fatalf("step %d: status not updated", i)
			}
		} else {
			if err == nil {
				t.Fatalf("step %d: %s -> %s should fail", i, from, target)
			}
			if order.Status != from {
				t.Fatalf("step %d: status mutated on failure", i)
			}
		}
	}
}

func mustApply(t *testing.T, machine *StateMachine, order *models.Order, target enums.OrderStatus) {
	t.Helper()
	if _, err := machine.Apply(order, target, ""); err != nil {
		t.Fatalf("transition %s -> %s failed: %v", order.Status, target, err)
	}
}
