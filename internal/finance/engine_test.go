package finance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/receivables"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/remote/remotetest"
)

func floatPtr(v float64) *float64 { return &v }

func newEngine(t *testing.T) (*Engine, *remotetest.Store, *cache.Collection[customers.Customer]) {
	t.Helper()
	store := remotetest.NewStore("tenant-a")
	col := cache.New(cache.ByName(func(c customers.Customer) string { return c.Name }))
	return NewEngine(store, col), store, col
}

func statsHandler(outstanding float64) func(remote.Row) (any, error) {
	return func(remote.Row) (any, error) {
		return CustomerStats{Outstanding: outstanding}, nil
	}
}

func TestCreditHeadroom(t *testing.T) {
	engine, store, col := newEngine(t)
	col.Upsert(customers.Customer{ID: "c1", Name: "Acme", CreditLimit: floatPtr(1000)})
	store.Handle("customer_stats", statsHandler(900))

	ok, err := engine.CreditHeadroom(context.Background(), "c1", 50)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = engine.CreditHeadroom(context.Background(), "c1", 150)
	require.NoError(t, err)
	require.False(t, ok)

	// Exactly at the limit still fits.
	ok, err = engine.CreditHeadroom(context.Background(), "c1", 100)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCreditHeadroomUnlimitedWithoutLimit(t *testing.T) {
	engine, _, col := newEngine(t)
	col.Upsert(customers.Customer{ID: "c1", Name: "Acme"})
	ok, err := engine.CreditHeadroom(context.Background(), "c1", 1e9)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCreditHeadroomFallsBackToPointRead(t *testing.T) {
	engine, store, _ := newEngine(t)
	store.Seed(customers.Table, remote.Row{
		"id": "c1", "name": "Acme", "credit_limit": 500.0,
		"discount_type": "none", "is_active": true,
	})
	store.Handle("customer_stats", statsHandler(0))

	ok, err := engine.CreditHeadroom(context.Background(), "c1", 400)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestApplyDiscount(t *testing.T) {
	pct := customers.Customer{DiscountType: customers.DiscountPercentage, DiscountValue: 10}
	require.Equal(t, 20.0, ApplyDiscount(pct, 200))

	fixed := customers.Customer{DiscountType: customers.DiscountFixed, DiscountValue: 50}
	require.Equal(t, 30.0, ApplyDiscount(fixed, 30)) // capped at the amount
	require.Equal(t, 50.0, ApplyDiscount(fixed, 80))

	none := customers.Customer{DiscountType: customers.DiscountNone, DiscountValue: 0}
	require.Equal(t, 0.0, ApplyDiscount(none, 200))

	require.Equal(t, 0.0, ApplyDiscount(pct, -5))
}

func TestApplyDiscountRoundsToCents(t *testing.T) {
	pct := customers.Customer{DiscountType: customers.DiscountPercentage, DiscountValue: 3}
	// 3% of 19.99 is 0.5997, rounded to 0.60.
	require.Equal(t, 0.6, ApplyDiscount(pct, 19.99))
}

func TestAuthorizeCreditSale(t *testing.T) {
	engine, store, col := newEngine(t)
	col.Upsert(customers.Customer{
		ID: "c1", Name: "Acme", CreditLimit: floatPtr(500),
		DiscountType: customers.DiscountPercentage, DiscountValue: 10,
	})
	store.Handle("customer_stats", statsHandler(0))

	decision, err := engine.AuthorizeCreditSale(context.Background(), "c1", 400)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 40.0, decision.Discount)
	require.Equal(t, 360.0, decision.Billable)

	decision, err = engine.AuthorizeCreditSale(context.Background(), "c1", 600)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, 0.0, decision.Billable)
}

func TestAgeBucketsBoundaries(t *testing.T) {
	asOf := time.Date(2026, 8, 30, 15, 30, 0, 0, time.UTC)
	due := func(daysAgo int) time.Time { return asOf.AddDate(0, 0, -daysAgo) }
	installments := []receivables.Installment{
		{ID: "a", Status: receivables.StatusPending, Amount: 10, DueDate: due(-5)}, // future
		{ID: "b", Status: receivables.StatusPending, Amount: 11, DueDate: due(0)},  // due today
		{ID: "c", Status: receivables.StatusLate, Amount: 12, DueDate: due(1)},
		{ID: "d", Status: receivables.StatusLate, Amount: 13, DueDate: due(30)},
		{ID: "e", Status: receivables.StatusLate, Amount: 14, DueDate: due(31)},
		{ID: "f", Status: receivables.StatusLate, Amount: 15, DueDate: due(60)},
		{ID: "g", Status: receivables.StatusLate, Amount: 16, DueDate: due(61)},
		{ID: "h", Status: receivables.StatusLate, Amount: 17, DueDate: due(90)},
		{ID: "i", Status: receivables.StatusLate, Amount: 18, DueDate: due(91)},
		{ID: "j", Status: receivables.StatusPaid, Amount: 99, DueDate: due(45)},      // settled
		{ID: "k", Status: receivables.StatusCancelled, Amount: 99, DueDate: due(45)}, // voided
	}
	buckets := Age(installments, asOf)
	require.Equal(t, 21.0, buckets.Current)
	require.Equal(t, 25.0, buckets.Overdue1To30)
	require.Equal(t, 29.0, buckets.Overdue31To60)
	require.Equal(t, 33.0, buckets.Overdue61To90)
	require.Equal(t, 18.0, buckets.Overdue90Plus)
}

func TestAgeUsesCalendarDays(t *testing.T) {
	// Due yesterday at 23:00, asOf today at 01:00: only two hours elapsed
	// but a full calendar day overdue.
	due := time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)
	asOf := time.Date(2026, 8, 30, 1, 0, 0, 0, time.UTC)
	buckets := Age([]receivables.Installment{
		{ID: "a", Status: receivables.StatusPending, Amount: 10, DueDate: due},
	}, asOf)
	require.Equal(t, 10.0, buckets.Overdue1To30)
	require.Equal(t, 0.0, buckets.Current)
}

func TestDashboardFansOut(t *testing.T) {
	engine, store, _ := newEngine(t)
	store.Handle("financial_summary", func(remote.Row) (any, error) {
		return FinancialSummary{CashRevenue: 100, CreditRevenue: 50, Received: 120, Outstanding: 30}, nil
	})
	store.Handle("receivable_aging", func(remote.Row) (any, error) {
		return AgingBuckets{Current: 30}, nil
	})
	store.Handle("product_profitability", func(remote.Row) (any, error) {
		return []ProductProfit{{ProductID: "p1", ProductName: "Anvil", Revenue: 100, Cost: 60, Margin: 40}}, nil
	})

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	report, err := engine.Dashboard(context.Background(), from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Equal(t, 150.0, report.Summary.CashRevenue+report.Summary.CreditRevenue)
	require.Equal(t, 30.0, report.Aging.Current)
	require.Len(t, report.Profitability, 1)
}

func TestDashboardFailsOnFirstError(t *testing.T) {
	engine, store, _ := newEngine(t)
	store.Handle("financial_summary", func(remote.Row) (any, error) {
		return FinancialSummary{}, nil
	})
	store.Handle("product_profitability", func(remote.Row) (any, error) {
		return []ProductProfit{}, nil
	})
	// receivable_aging unregistered: the fan-out must surface the error.
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := engine.Dashboard(context.Background(), from, from.AddDate(0, 1, 0))
	require.Error(t, err)
}

func TestCustomerStatsDecodes(t *testing.T) {
	engine, store, _ := newEngine(t)
	last := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store.Handle("customer_stats", func(args remote.Row) (any, error) {
		return CustomerStats{Outstanding: 250, PurchaseCount: 4, TotalPurchased: 900, LastPurchaseAt: &last}, nil
	})
	stats, err := engine.CustomerStats(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 250.0, stats.Outstanding)
	require.Equal(t, int64(4), stats.PurchaseCount)
	require.NotNil(t, stats.LastPurchaseAt)
}
