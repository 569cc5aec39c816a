// Package tenant scopes the entity caches, gateways and change-stream
// subscriptions to one authenticated session. A workspace is built fresh on
// every sign-in and never survives a sign-out, so no cache instance can leak
// rows across tenants.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/catalog"
	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/customfields"
	"github.com/ledgerline/ledgerline/internal/finance"
	"github.com/ledgerline/ledgerline/internal/receivables"
	"github.com/ledgerline/ledgerline/internal/reconcile"
	"github.com/ledgerline/ledgerline/internal/remote"
)

// StoreProvider hands out tenant-bound store handles.
type StoreProvider interface {
	Tenant(tenantID string) remote.Store
}

// Dependencies are the shared collaborators a workspace is built from.
type Dependencies struct {
	Logger *slog.Logger
	Stores StoreProvider
	Stream remote.Stream
}

// Workspace holds everything owned by one tenant session.
type Workspace struct {
	tenantID string
	logger   *slog.Logger
	closed   atomic.Bool

	Products    *catalog.ProductService
	Categories  *catalog.CategoryService
	Fields      *customfields.Service
	Customers   *customers.Service
	Receivables *receivables.Service
	Finance     *finance.Engine

	reconciler *reconcile.Reconciler
	cancel     context.CancelFunc
}

// TenantID implements shared.SessionScope.
func (w *Workspace) TenantID() string { return w.tenantID }

// Alive implements shared.SessionScope.
func (w *Workspace) Alive() bool { return !w.closed.Load() }

// Open builds a fresh workspace: new caches, new gateways, and one
// change-stream subscription per entity table.
func Open(ctx context.Context, tenantID string, deps Dependencies) (*Workspace, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant: tenant id required")
	}
	store := deps.Stores.Tenant(tenantID)
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &Workspace{
		tenantID: tenantID,
		logger:   deps.Logger.With(slog.String("tenant", tenantID)),
		cancel:   cancel,
	}

	productCache := cache.New(cache.ByName(func(p catalog.Product) string { return p.Name }))
	categoryCache := cache.New(cache.ByName(func(c catalog.Category) string { return c.Name }))
	fieldCache := cache.New(cache.ByName(func(f customfields.CustomField) string { return f.Name }))
	customerCache := cache.New(cache.ByName(func(c customers.Customer) string { return c.Name }))
	installmentCache := cache.New(cache.ByTime(func(i receivables.Installment) time.Time { return i.DueDate }))

	w.Products = catalog.NewProductService(w.logger, w, store, productCache)
	w.Categories = catalog.NewCategoryService(w.logger, w, store, categoryCache, w.Products)
	w.Fields = customfields.NewService(w.logger, w, store, fieldCache)
	w.Customers = customers.NewService(w.logger, w, store, customerCache)
	w.Receivables = receivables.NewService(w.logger, w, store, installmentCache)
	w.Finance = finance.NewEngine(store, customerCache)

	w.reconciler = reconcile.New(w.logger, deps.Stream, tenantID)
	// Soft-deleted rows arrive as updates; the discard predicate drops them.
	bindings := []reconcile.Binding{
		reconcile.Bind(catalog.TableProducts, productCache, func(p catalog.Product) bool { return !p.IsActive }),
		reconcile.Bind(catalog.TableCategories, categoryCache, func(c catalog.Category) bool { return !c.IsActive }),
		reconcile.Bind(customfields.Table, fieldCache, func(f customfields.CustomField) bool { return !f.IsActive }),
		reconcile.Bind(customers.Table, customerCache, func(c customers.Customer) bool { return !c.IsActive }),
		reconcile.Bind(receivables.Table, installmentCache, nil),
	}
	for _, b := range bindings {
		if err := w.reconciler.Watch(streamCtx, b); err != nil {
			w.Close()
			return nil, fmt.Errorf("tenant: subscribe %s: %w", b.Table, err)
		}
	}
	return w, nil
}

// Close tears the workspace down: marks it dead for in-flight mutations and
// releases every subscription. Idempotent.
func (w *Workspace) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.cancel()
	if err := w.reconciler.Close(); err != nil {
		w.logger.Warn("close reconciler", slog.Any("error", err))
	}
}
