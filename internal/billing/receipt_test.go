package billing

import (
	"testing"
)

func TestNewReceipt_DropsNonPositiveEntries(t *testing.T) {
	r := NewReceipt(map[string]int{
		"lecture_credits_standard": 1,
		"slides_credits":           0,
		"":                         3,
	})
	if len(r.Charged) != 1 {
		t.Fatalf("expected 1 charged entry, got %d", len(r.Charged))
	}
	if r.Charged["lecture_credits_standard"] != 1 {
		t.Fatalf("expected charge of 1, got %d", r.Charged["lecture_credits_standard"])
	}
	if len(r.Refunded) != 0 {
		t.Fatalf("expected empty refunded map")
	}
	if r.UpdatedAt.IsZero() {
		t.Fatalf("expected updated_at to be set")
	}
}

func TestAddRefund_Accumulates(t *testing.T) {
	r := NewReceipt(map[string]int{"slides_credits": 2})
	before := r.UpdatedAt

	r.AddRefund("slides_credits", 1)
	r.AddRefund("slides_credits", 1)
	if r.Refunded["slides_credits"] != 2 {
		t.Fatalf("expected refunded total 2, got %d", r.Refunded["slides_credits"])
	}
	if r.UpdatedAt.Before(before) {
		t.Fatalf("expected updated_at to move forward")
	}
}

func TestAddRefund_IgnoresInvalid(t *testing.T) {
	r := NewReceipt(nil)
	r.AddRefund("", 1)
	r.AddRefund("slides_credits", 0)
	r.AddRefund("slides_credits", -2)
	if len(r.Refunded) != 0 {
		t.Fatalf("expected no refunds recorded, got %v", r.Refunded)
	}
}

func TestEmptyAndSnapshot(t *testing.T) {
	r := NewReceipt(nil)
	if !r.Empty() {
		t.Fatalf("expected fresh receipt to be empty")
	}

	r.AddRefund("interview_credits_short", 1)
	if r.Empty() {
		t.Fatalf("expected receipt with refund to be non-empty")
	}

	snap := r.Snapshot()
	snap.Refunded["interview_credits_short"] = 99
	if r.Refunded["interview_credits_short"] != 1 {
		t.Fatalf("snapshot mutation leaked into receipt")
	}
}
