package billing

import (
	"time"
)

// Receipt tracks the credits charged and refunded for a single job.
// Refunds are additive and are never clamped against the charged map:
// the receipt is an audit trail of what actually happened, and hiding a
// double refund behind a clamp would mask the bug that caused it.
type Receipt struct {
	Charged   map[string]int `json:"charged"`
	Refunded  map[string]int `json:"refunded"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewReceipt seeds a receipt with everything debited up front for the job,
// add-on costs included. Non-positive entries are dropped.
func NewReceipt(charged map[string]int) Receipt {
	return Receipt{
		Charged:   normalize(charged),
		Refunded:  map[string]int{},
		UpdatedAt: time.Now(),
	}
}

// AddRefund records amount credits of creditType as refunded. Purely
// additive; zero or negative amounts and empty types are ignored.
func (r *Receipt) AddRefund(creditType string, amount int) {
	if creditType == "" || amount <= 0 {
		return
	}
	if r.Refunded == nil {
		r.Refunded = map[string]int{}
	}
	r.Refunded[creditType] += amount
	r.UpdatedAt = time.Now()
}

// Empty reports whether the receipt carries no charges and no refunds.
// Status responses omit empty receipts.
func (r Receipt) Empty() bool {
	return len(normalize(r.Charged)) == 0 && len(normalize(r.Refunded)) == 0
}

// Snapshot returns an independent copy safe to hand to status responses.
func (r Receipt) Snapshot() Receipt {
	return Receipt{
		Charged:   normalize(r.Charged),
		Refunded:  normalize(r.Refunded),
		UpdatedAt: r.UpdatedAt,
	}
}

func normalize(m map[string]int) map[string]int {
	out := map[string]int{}
	for creditType, amount := range m {
		if creditType == "" || amount <= 0 {
			continue
		}
		out[creditType] = amount
	}
	return out
}
