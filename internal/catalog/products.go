package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/shared"
)

const (
	// TableProducts is the products base table.
	TableProducts = "products"
	// viewProducts carries the denormalized category name for reads.
	viewProducts = "products_view"
)

// ProductService is the mutation gateway for products.
type ProductService struct {
	logger   *slog.Logger
	scope    shared.SessionScope
	store    remote.Store
	cache    *cache.Collection[Product]
	validate *validator.Validate
}

// NewProductService constructs the gateway around the session's cache.
func NewProductService(logger *slog.Logger, scope shared.SessionScope, store remote.Store, col *cache.Collection[Product]) *ProductService {
	return &ProductService{
		logger:   logger,
		scope:    scope,
		store:    store,
		cache:    col,
		validate: validator.New(),
	}
}

// Cache exposes the session's product collection.
func (s *ProductService) Cache() *cache.Collection[Product] { return s.cache }

// Load replaces the cache with a fresh fetch of active products. On failure
// the previous cache stays intact.
func (s *ProductService) Load(ctx context.Context, filter ProductFilter) ([]Product, error) {
	where := remote.Filter{"is_active": true}
	if filter.CategoryID != nil {
		where["category_id"] = *filter.CategoryID
	}
	rows, err := s.store.Select(ctx, remote.SelectRequest{
		Table:   viewProducts,
		Filter:  where,
		OrderBy: "name",
	})
	if err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(rows))
	for _, row := range rows {
		var p Product
		if err := remote.DecodeRow(row, &p); err != nil {
			return nil, shared.NewRemoteError("load products", err)
		}
		products = append(products, p)
	}
	if s.scope.Alive() {
		s.cache.Replace(products)
	}
	return products, nil
}

// Create validates and inserts a product, splicing the confirmed row into
// the cache at its sorted position.
func (s *ProductService) Create(ctx context.Context, req CreateProductRequest) (*Product, error) {
	shared.MustTenant(s.scope)
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	row := remote.Row{
		"name":      req.Name,
		"sku":       req.SKU,
		"price":     req.Price,
		"stock":     req.Stock,
		"is_active": true,
	}
	if req.CategoryID != nil {
		row["category_id"] = *req.CategoryID
	}
	if req.ImageURL != nil {
		row["image_url"] = *req.ImageURL
	}
	inserted, err := s.store.Insert(ctx, TableProducts, row)
	if err != nil {
		return nil, err
	}
	return s.reflect(inserted)
}

// Update patches a product. The cache entry is replaced wholesale with the
// server's returned row, never merged client-side.
func (s *ProductService) Update(ctx context.Context, id string, req UpdateProductRequest) (*Product, error) {
	shared.MustTenant(s.scope)
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	patch := remote.Row{}
	if req.Name != nil {
		patch["name"] = *req.Name
	}
	if req.SKU != nil {
		patch["sku"] = *req.SKU
	}
	if req.Price != nil {
		patch["price"] = *req.Price
	}
	if req.Stock != nil {
		patch["stock"] = *req.Stock
	}
	if req.CategoryID != nil {
		patch["category_id"] = *req.CategoryID
	}
	if req.ImageURL != nil {
		patch["image_url"] = *req.ImageURL
	}
	if len(patch) == 0 {
		if current, ok := s.cache.Get(id); ok {
			return &current, nil
		}
		return nil, shared.NewValidationError("", "empty patch")
	}
	updated, err := s.store.Update(ctx, TableProducts, id, patch)
	if err != nil {
		return nil, err
	}
	return s.reflect(updated)
}

// SoftDelete deactivates a product. Products carry no dependents, so the
// delete is unconditional; the row stays server-side as history.
func (s *ProductService) SoftDelete(ctx context.Context, id string) error {
	shared.MustTenant(s.scope)
	if _, err := s.store.Update(ctx, TableProducts, id, remote.Row{"is_active": false}); err != nil {
		return err
	}
	if s.scope.Alive() {
		s.cache.Remove(id)
	}
	return nil
}

func (s *ProductService) reflect(row remote.Row) (*Product, error) {
	var p Product
	if err := remote.DecodeRow(row, &p); err != nil {
		return nil, shared.NewRemoteError("decode product", err)
	}
	if s.scope.Alive() {
		s.cache.Upsert(p)
	} else {
		s.logger.Debug("skip cache splice on closed workspace",
			slog.String("table", TableProducts), slog.String("id", p.ID))
	}
	return &p, nil
}

// ActiveCountByCategory counts active products referencing a category, used
// as the delete guard for categories.
func (s *ProductService) ActiveCountByCategory(ctx context.Context, categoryID string) (int, error) {
	rows, err := s.store.Select(ctx, remote.SelectRequest{
		Table:  TableProducts,
		Filter: remote.Filter{"category_id": categoryID, "is_active": true},
		Limit:  1,
	})
	if err != nil {
		return 0, fmt.Errorf("count category references: %w", err)
	}
	return len(rows), nil
}
