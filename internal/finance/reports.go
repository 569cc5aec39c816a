package finance

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// CustomerStats is the server-computed position of one customer.
type CustomerStats struct {
	Outstanding    float64    `json:"outstanding"`
	PurchaseCount  int64      `json:"purchase_count"`
	TotalPurchased float64    `json:"total_purchased"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`
}

// FinancialSummary aggregates revenue and receivables for a date range.
type FinancialSummary struct {
	CashRevenue   float64 `json:"cash_revenue"`
	CreditRevenue float64 `json:"credit_revenue"`
	Received      float64 `json:"received"`
	Outstanding   float64 `json:"outstanding"`
}

// Movement is one inventory history entry.
type Movement struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Kind        string    `json:"kind"`
	Quantity    float64   `json:"quantity"`
	UnitCost    float64   `json:"unit_cost"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductProfit is one row of the profitability report.
type ProductProfit struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Revenue     float64 `json:"revenue"`
	Cost        float64 `json:"cost"`
	Margin      float64 `json:"margin"`
}

// DashboardReport bundles the dashboard aggregates fetched in one shot.
type DashboardReport struct {
	Summary       FinancialSummary `json:"summary"`
	Aging         AgingBuckets     `json:"aging"`
	Profitability []ProductProfit  `json:"profitability"`
}

func (e *Engine) call(ctx context.Context, proc string, args remote.Row, dst any) error {
	raw, err := e.store.Call(ctx, proc, args)
	if err != nil {
		return err
	}
	if err := remote.Decode(raw, dst); err != nil {
		return shared.NewRemoteError("rpc "+proc, err)
	}
	return nil
}

// CustomerStats fetches the customer's fresh aggregate position. Concurrent
// identical fetches share one remote call.
func (e *Engine) CustomerStats(ctx context.Context, customerID string) (*CustomerStats, error) {
	v, err, _ := e.group.Do("customer_stats:"+customerID, func() (any, error) {
		var stats CustomerStats
		if err := e.call(ctx, "customer_stats", remote.Row{"customer_id": customerID}, &stats); err != nil {
			return nil, err
		}
		return &stats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CustomerStats), nil
}

// Summary fetches the financial summary for a date range.
func (e *Engine) Summary(ctx context.Context, from, to time.Time) (*FinancialSummary, error) {
	var summary FinancialSummary
	if err := e.call(ctx, "financial_summary", remote.Row{"from": from, "to": to}, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ReceivableAging fetches the server-computed aging buckets.
func (e *Engine) ReceivableAging(ctx context.Context, asOf time.Time) (*AgingBuckets, error) {
	var buckets AgingBuckets
	if err := e.call(ctx, "receivable_aging", remote.Row{"as_of": asOf}, &buckets); err != nil {
		return nil, err
	}
	return &buckets, nil
}

// InventoryMovements fetches inventory history for a date range, optionally
// narrowed to one product.
func (e *Engine) InventoryMovements(ctx context.Context, productID string, from, to time.Time) ([]Movement, error) {
	args := remote.Row{"from": from, "to": to}
	if productID != "" {
		args["product_id"] = productID
	}
	var movements []Movement
	if err := e.call(ctx, "inventory_movements", args, &movements); err != nil {
		return nil, err
	}
	return movements, nil
}

// ProductProfitability fetches per-product margin for a date range.
func (e *Engine) ProductProfitability(ctx context.Context, from, to time.Time) ([]ProductProfit, error) {
	var profits []ProductProfit
	if err := e.call(ctx, "product_profitability", remote.Row{"from": from, "to": to}, &profits); err != nil {
		return nil, err
	}
	return profits, nil
}

// Dashboard fans the dashboard aggregates out concurrently and fails on the
// first error.
func (e *Engine) Dashboard(ctx context.Context, from, to time.Time) (*DashboardReport, error) {
	var report DashboardReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := e.Summary(gctx, from, to)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		report.Summary = *summary
		return nil
	})
	g.Go(func() error {
		aging, err := e.ReceivableAging(gctx, e.now())
		if err != nil {
			return fmt.Errorf("aging: %w", err)
		}
		report.Aging = *aging
		return nil
	})
	g.Go(func() error {
		profits, err := e.ProductProfitability(gctx, from, to)
		if err != nil {
			return fmt.Errorf("profitability: %w", err)
		}
		report.Profitability = profits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &report, nil
}
