// Package receivables manages the installments of credit sales: the
// session's due-date-ordered cache, the payment/cancellation state machine,
// and loading by sale or status.
package receivables

import "time"

// Status enumerates installment states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusLate      Status = "late"
	StatusCancelled Status = "cancelled"
)

// CanTransition reports whether an installment may move from one status to
// another by user action. The pending→late edge is excluded: it belongs to
// the server-side aging sweep and is only ever observed here through a
// reload or a change-stream event.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusPaid, StatusCancelled:
		return from == StatusPending || from == StatusLate
	}
	return false
}

// Installment is one slice of a credit sale. Amount is always positive; a
// paid installment always carries its paid timestamp.
type Installment struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	SaleID    string     `json:"sale_id"`
	Seq       int        `json:"seq"`
	Amount    float64    `json:"amount"`
	DueDate   time.Time  `json:"due_date"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Key implements cache.Entity.
func (i Installment) Key() string { return i.ID }

// Unpaid reports whether the installment still counts toward receivables.
func (i Installment) Unpaid() bool {
	return i.Status == StatusPending || i.Status == StatusLate
}

// Filter narrows an installment load.
type Filter struct {
	SaleID *string
	Status *Status
}
