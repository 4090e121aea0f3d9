package enums

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusAssigned, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusAssigned, OrderStatusPending, true},
		{OrderStatusAssigned, OrderStatusPickedUp, true},
		{OrderStatusAssigned, OrderStatusDelivered, false},
		{OrderStatusPickedUp, OrderStatusInTransit, true},
		{OrderStatusPickedUp, OrderStatusDelivered, true},
		{OrderStatusPickedUp, OrderStatusPending, false},
		{OrderStatusInTransit, OrderStatusOutForDelivery, true},
		{OrderStatusInTransit, OrderStatusPickedUp, false},
		{OrderStatusOutForDelivery, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusReturned, true},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusRejected, OrderStatusPending, true},
		{OrderStatusRejected, OrderStatusAssigned, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected allowed=%v got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestOrderStatusTerminalStatesHaveNoExits(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusReturned, OrderStatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
		if next := status.NextStatuses(); len(next) != 0 {
			t.Fatalf("terminal status %s has exits %v", status, next)
		}
		for _, target := range validOrderStatuses {
			if status.CanTransitionTo(target) {
				t.Fatalf("terminal status %s allows transition to %s", status, target)
			}
		}
	}
}

func TestOrderStatusNoSelfTransitions(t *testing.T) {
	for _, status := range validOrderStatuses {
		if status.CanTransitionTo(status) {
			t.Fatalf("status %s allows transition to itself", status)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("out_for_delivery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != OrderStatusOutForDelivery {
		t.Fatalf("unexpected status %s", status)
	}

	if _, err := ParseOrderStatus("teleporting"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
