package domain

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:   {OrderStatusPreparing, OrderStatusCancelled},
		OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
		OrderStatusReady:     {OrderStatusCompleted, OrderStatusCancelled},
	}
	all := []OrderStatus{OrderStatusPending, OrderStatusPreparing, OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, candidate := range allowed[from] {
				if candidate == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}

	if !OrderStatusCompleted.Terminal() || !OrderStatusCancelled.Terminal() {
		t.Fatalf("completed and cancelled must be terminal")
	}
	if OrderStatusPending.Terminal() {
		t.Fatalf("pending must not be terminal")
	}
	if OrderStatus("shipped").Valid() {
		t.Fatalf("unknown status should be invalid")
	}
}

func TestBookingStatusTransitions(t *testing.T) {
	if !BookingStatusPending.CanTransitionTo(BookingStatusPaid) {
		t.Fatalf("pending -> paid should be allowed")
	}
	if !BookingStatusPending.CanTransitionTo(BookingStatusCancelled) {
		t.Fatalf("pending -> cancelled should be allowed")
	}
	if BookingStatusPaid.CanTransitionTo(BookingStatusCancelled) {
		t.Fatalf("paid is terminal")
	}
	if BookingStatusCancelled.CanTransitionTo(BookingStatusPaid) {
		t.Fatalf("cancelled is terminal")
	}
}
