// Package finance derives credit exposure, discounts and receivables aging
// from the session's caches plus server-computed aggregates. Everything here
// is side-effect free; aggregates too expensive to compute client-side are
// delegated to remote procedures.
package finance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/receivables"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Engine evaluates financial rules for one tenant session.
type Engine struct {
	store     remote.Store
	customers *cache.Collection[customers.Customer]
	group     singleflight.Group
	now       func() time.Time
}

// NewEngine constructs the engine over the session's customer cache.
func NewEngine(store remote.Store, custs *cache.Collection[customers.Customer]) *Engine {
	return &Engine{store: store, customers: custs, now: time.Now}
}

func (e *Engine) customer(ctx context.Context, id string) (customers.Customer, error) {
	if c, ok := e.customers.Get(id); ok {
		return c, nil
	}
	rows, err := e.store.Select(ctx, remote.SelectRequest{
		Table:  customers.Table,
		Filter: remote.Filter{"id": id},
		Limit:  1,
	})
	if err != nil {
		return customers.Customer{}, err
	}
	if len(rows) == 0 {
		return customers.Customer{}, shared.NewRemoteError("customer "+id, shared.ErrNotFound)
	}
	var c customers.Customer
	if err := remote.DecodeRow(rows[0], &c); err != nil {
		return customers.Customer{}, shared.NewRemoteError("decode customer", err)
	}
	return c, nil
}

// CreditHeadroom reports whether a proposed credit amount fits under the
// customer's limit. The outstanding balance is fetched fresh on every call:
// it moves with every sale and every payment, so a cached total would let
// stale data authorize credit. Concurrent duplicate fetches are collapsed,
// not reused across calls.
func (e *Engine) CreditHeadroom(ctx context.Context, customerID string, amount float64) (bool, error) {
	cust, err := e.customer(ctx, customerID)
	if err != nil {
		return false, err
	}
	if cust.CreditLimit == nil {
		return true, nil
	}
	stats, err := e.CustomerStats(ctx, customerID)
	if err != nil {
		return false, err
	}
	exposure := decimal.NewFromFloat(stats.Outstanding).Add(decimal.NewFromFloat(amount))
	return exposure.LessThanOrEqual(decimal.NewFromFloat(*cust.CreditLimit)), nil
}

// ApplyDiscount returns the discount a customer's policy grants on amount.
// Fixed discounts are capped at the amount; the result is never negative.
func ApplyDiscount(cust customers.Customer, amount float64) float64 {
	amt := decimal.NewFromFloat(amount)
	if amt.IsNegative() {
		return 0
	}
	var discount decimal.Decimal
	switch cust.DiscountType {
	case customers.DiscountPercentage:
		discount = amt.Mul(decimal.NewFromFloat(cust.DiscountValue)).Div(decimal.NewFromInt(100))
	case customers.DiscountFixed:
		discount = decimal.Min(decimal.NewFromFloat(cust.DiscountValue), amt)
	default:
		return 0
	}
	if discount.IsNegative() {
		return 0
	}
	f, _ := discount.Round(2).Float64()
	return f
}

// CreditDecision is the outcome of authorizing a proposed credit sale.
type CreditDecision struct {
	Allowed  bool    `json:"allowed"`
	Discount float64 `json:"discount"`
	Billable float64 `json:"billable"`
}

// AuthorizeCreditSale checks headroom for a proposed sale amount and, when
// allowed, applies the customer's discount to produce the billable total.
func (e *Engine) AuthorizeCreditSale(ctx context.Context, customerID string, amount float64) (*CreditDecision, error) {
	cust, err := e.customer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	allowed, err := e.CreditHeadroom(ctx, customerID, amount)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return &CreditDecision{Allowed: false}, nil
	}
	discount := ApplyDiscount(cust, amount)
	billable, _ := decimal.NewFromFloat(amount).Sub(decimal.NewFromFloat(discount)).Round(2).Float64()
	return &CreditDecision{Allowed: true, Discount: discount, Billable: billable}, nil
}

// AgingBuckets partitions unpaid installments by how overdue they are as of
// asOf. Due today or later counts as current; day boundaries (30, 60, 90)
// belong to the lower bucket.
type AgingBuckets struct {
	Current       float64 `json:"current"`
	Overdue1To30  float64 `json:"overdue_1_30"`
	Overdue31To60 float64 `json:"overdue_31_60"`
	Overdue61To90 float64 `json:"overdue_61_90"`
	Overdue90Plus float64 `json:"overdue_90_plus"`
}

// Age computes aging buckets from a snapshot of installments.
func Age(installments []receivables.Installment, asOf time.Time) AgingBuckets {
	var buckets AgingBuckets
	for _, inst := range installments {
		if !inst.Unpaid() {
			continue
		}
		days := daysOverdue(inst.DueDate, asOf)
		switch {
		case days <= 0:
			buckets.Current += inst.Amount
		case days <= 30:
			buckets.Overdue1To30 += inst.Amount
		case days <= 60:
			buckets.Overdue31To60 += inst.Amount
		case days <= 90:
			buckets.Overdue61To90 += inst.Amount
		default:
			buckets.Overdue90Plus += inst.Amount
		}
	}
	return buckets
}

// daysOverdue compares calendar days, not elapsed hours, so an installment
// due yesterday is one day overdue regardless of the time of day.
func daysOverdue(due, asOf time.Time) int {
	d := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	a := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return int(a.Sub(d).Hours() / 24)
}
