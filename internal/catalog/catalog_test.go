package catalog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/remote/remotetest"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type fixture struct {
	store      *remotetest.Store
	scope      *remotetest.Scope
	products   *ProductService
	categories *CategoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := remotetest.NewStore("tenant-a")
	scope := &remotetest.Scope{Tenant: "tenant-a"}
	logger := slog.Default()
	products := NewProductService(logger, scope, store, cache.New(cache.ByName(func(p Product) string { return p.Name })))
	categories := NewCategoryService(logger, scope, store, cache.New(cache.ByName(func(c Category) string { return c.Name })), products)
	return &fixture{store: store, scope: scope, products: products, categories: categories}
}

func TestCreateProductSplicesCache(t *testing.T) {
	f := newFixture(t)
	p, err := f.products.Create(context.Background(), CreateProductRequest{
		Name: "Anvil", SKU: "ANV-1", Price: 49.90, Stock: 3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.True(t, p.IsActive)

	cached, ok := f.products.Cache().Get(p.ID)
	require.True(t, ok)
	require.Equal(t, "Anvil", cached.Name)
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.products.Create(context.Background(), CreateProductRequest{SKU: "X"})
	require.True(t, shared.IsValidation(err))
	require.Equal(t, 0, f.products.Cache().Len())
}

func TestCreateProductRemoteFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext = true
	_, err := f.products.Create(context.Background(), CreateProductRequest{
		Name: "Anvil", SKU: "ANV-1", Price: 10,
	})
	require.True(t, shared.IsRemote(err))
	require.Equal(t, 0, f.products.Cache().Len())
}

func TestLoadProductsFiltersInactiveAndKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("products_view",
		remote.Row{"id": "1", "name": "zebra mug", "sku": "Z", "is_active": true},
		remote.Row{"id": "2", "name": "Apple mug", "sku": "A", "is_active": true},
		remote.Row{"id": "3", "name": "gone", "sku": "G", "is_active": false},
	)
	list, err := f.products.Load(context.Background(), ProductFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	snap := f.products.Cache().Snapshot()
	require.Equal(t, "Apple mug", snap[0].Name)
	require.Equal(t, "zebra mug", snap[1].Name)
}

func TestUpdateProductReplacesCachedRowWholesale(t *testing.T) {
	f := newFixture(t)
	p, err := f.products.Create(context.Background(), CreateProductRequest{
		Name: "Anvil", SKU: "ANV-1", Price: 10, Stock: 5,
	})
	require.NoError(t, err)

	newName := "Bigger Anvil"
	updated, err := f.products.Update(context.Background(), p.ID, UpdateProductRequest{Name: &newName})
	require.NoError(t, err)
	require.Equal(t, "Bigger Anvil", updated.Name)
	require.Equal(t, int64(5), updated.Stock)

	cached, _ := f.products.Cache().Get(p.ID)
	require.Equal(t, "Bigger Anvil", cached.Name)
	require.Equal(t, 1, f.products.Cache().Len())
}

func TestSoftDeleteProductEvictsFromCache(t *testing.T) {
	f := newFixture(t)
	p, err := f.products.Create(context.Background(), CreateProductRequest{
		Name: "Anvil", SKU: "ANV-1",
	})
	require.NoError(t, err)
	require.NoError(t, f.products.SoftDelete(context.Background(), p.ID))

	_, ok := f.products.Cache().Get(p.ID)
	require.False(t, ok)
	rows := f.store.Rows(TableProducts)
	require.Len(t, rows, 1)
	require.Equal(t, false, rows[0]["is_active"])
}

func TestDeleteCategoryWithActiveProductsConflicts(t *testing.T) {
	f := newFixture(t)
	c, err := f.categories.Create(context.Background(), CreateCategoryRequest{Name: "Mugs"})
	require.NoError(t, err)
	catID := c.ID
	// The guard queries the base table by category reference.
	f.store.Seed(TableProducts, remote.Row{
		"id": uuid.NewString(), "name": "mug", "sku": "M-1",
		"category_id": catID, "is_active": true,
	})

	err = f.categories.SoftDelete(context.Background(), catID)
	require.True(t, shared.IsConflict(err))

	// Both caches untouched: the category is still cached and active.
	cached, ok := f.categories.Cache().Get(catID)
	require.True(t, ok)
	require.True(t, cached.IsActive)
}

func TestDeleteCategoryWithoutReferences(t *testing.T) {
	f := newFixture(t)
	c, err := f.categories.Create(context.Background(), CreateCategoryRequest{Name: "Mugs"})
	require.NoError(t, err)
	require.NoError(t, f.categories.SoftDelete(context.Background(), c.ID))
	_, ok := f.categories.Cache().Get(c.ID)
	require.False(t, ok)
}

func TestMutationWithoutTenantPanics(t *testing.T) {
	f := newFixture(t)
	f.scope.Tenant = ""
	require.Panics(t, func() {
		_, _ = f.products.Create(context.Background(), CreateProductRequest{Name: "Anvil", SKU: "A"})
	})
}

func TestClosedWorkspaceSkipsCacheSplice(t *testing.T) {
	f := newFixture(t)
	f.scope.Dead = true
	p, err := f.products.Create(context.Background(), CreateProductRequest{
		Name: "Anvil", SKU: "ANV-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	// The write landed remotely but the dead session's cache stays empty.
	require.Equal(t, 0, f.products.Cache().Len())
	require.Len(t, f.store.Rows(TableProducts), 1)
}
