package domain

import "testing"

func TestNextPaymentStatus(t *testing.T) {
	t.Run("awaiting moves to received", func(t *testing.T) {
		next, applied := NextPaymentStatus(PaymentAwaiting, PaymentReceived)
		if !applied {
			t.Fatal("expected transition to apply")
		}
		if next != PaymentReceived {
			t.Fatalf("expected %s, got %s", PaymentReceived, next)
		}
	})

	t.Run("awaiting moves to failed", func(t *testing.T) {
		next, applied := NextPaymentStatus(PaymentAwaiting, PaymentFailed)
		if !applied {
			t.Fatal("expected transition to apply")
		}
		if next != PaymentFailed {
			t.Fatalf("expected %s, got %s", PaymentFailed, next)
		}
	})

	t.Run("received is terminal", func(t *testing.T) {
		for _, target := range []PaymentStatus{PaymentAwaiting, PaymentFailed, PaymentReceived} {
			next, applied := NextPaymentStatus(PaymentReceived, target)
			if applied {
				t.Fatalf("expected no transition from received to %s", target)
			}
			if next != PaymentReceived {
				t.Fatalf("expected state to stay received, got %s", next)
			}
		}
	})

	t.Run("failed is terminal", func(t *testing.T) {
		next, applied := NextPaymentStatus(PaymentFailed, PaymentReceived)
		if applied {
			t.Fatal("expected no transition from failed")
		}
		if next != PaymentFailed {
			t.Fatalf("expected state to stay failed, got %s", next)
		}
	})

	t.Run("awaiting never regresses to awaiting", func(t *testing.T) {
		if _, applied := NextPaymentStatus(PaymentAwaiting, PaymentAwaiting); applied {
			t.Fatal("awaiting is not a valid transition target")
		}
	})
}

func TestComputeTotals(t *testing.T) {
	t.Run("sums quantities and price times quantity", func(t *testing.T) {
		items := []LineItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: 2500},
			{ProductID: "p2", Quantity: 1, UnitPrice: 10000},
		}

		totalItems, totalAmount := ComputeTotals(items)

		if totalItems != 3 {
			t.Fatalf("expected 3 total items, got %d", totalItems)
		}
		if totalAmount != 15000 {
			t.Fatalf("expected total 15000, got %d", totalAmount)
		}
	})

	t.Run("empty items yield zero totals", func(t *testing.T) {
		totalItems, totalAmount := ComputeTotals(nil)
		if totalItems != 0 || totalAmount != 0 {
			t.Fatalf("expected zero totals, got %d items %d amount", totalItems, totalAmount)
		}
	})
}
