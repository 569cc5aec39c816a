package catalog

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// TableCategories is the categories table.
const TableCategories = "categories"

// CategoryService is the mutation gateway for categories.
type CategoryService struct {
	logger   *slog.Logger
	scope    shared.SessionScope
	store    remote.Store
	cache    *cache.Collection[Category]
	products *ProductService
	validate *validator.Validate
}

// NewCategoryService constructs the gateway. The product service backs the
// reference-count guard on delete.
func NewCategoryService(logger *slog.Logger, scope shared.SessionScope, store remote.Store, col *cache.Collection[Category], products *ProductService) *CategoryService {
	return &CategoryService{
		logger:   logger,
		scope:    scope,
		store:    store,
		cache:    col,
		products: products,
		validate: validator.New(),
	}
}

// Cache exposes the session's category collection.
func (s *CategoryService) Cache() *cache.Collection[Category] { return s.cache }

// Load replaces the cache with the active categories.
func (s *CategoryService) Load(ctx context.Context) ([]Category, error) {
	rows, err := s.store.Select(ctx, remote.SelectRequest{
		Table:   TableCategories,
		Filter:  remote.Filter{"is_active": true},
		OrderBy: "name",
	})
	if err != nil {
		return nil, err
	}
	categories := make([]Category, 0, len(rows))
	for _, row := range rows {
		var c Category
		if err := remote.DecodeRow(row, &c); err != nil {
			return nil, shared.NewRemoteError("load categories", err)
		}
		categories = append(categories, c)
	}
	if s.scope.Alive() {
		s.cache.Replace(categories)
	}
	return categories, nil
}

// Create validates and inserts a category.
func (s *CategoryService) Create(ctx context.Context, req CreateCategoryRequest) (*Category, error) {
	shared.MustTenant(s.scope)
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	inserted, err := s.store.Insert(ctx, TableCategories, remote.Row{
		"name":      req.Name,
		"is_active": true,
	})
	if err != nil {
		return nil, err
	}
	return s.reflect(inserted)
}

// Update renames a category. Cached product rows keep their old denormalized
// category name until the next product load; that staleness window is
// accepted rather than joined away client-side.
func (s *CategoryService) Update(ctx context.Context, id string, req UpdateCategoryRequest) (*Category, error) {
	shared.MustTenant(s.scope)
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if req.Name == nil {
		if current, ok := s.cache.Get(id); ok {
			return &current, nil
		}
		return nil, shared.NewValidationError("", "empty patch")
	}
	updated, err := s.store.Update(ctx, TableCategories, id, remote.Row{"name": *req.Name})
	if err != nil {
		return nil, err
	}
	return s.reflect(updated)
}

// SoftDelete deactivates a category unless an active product still references
// it. The guard runs before any write; on conflict both caches are untouched.
func (s *CategoryService) SoftDelete(ctx context.Context, id string) error {
	shared.MustTenant(s.scope)
	refs, err := s.products.ActiveCountByCategory(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return shared.NewConflictError("category has active products")
	}
	if _, err := s.store.Update(ctx, TableCategories, id, remote.Row{"is_active": false}); err != nil {
		return err
	}
	if s.scope.Alive() {
		s.cache.Remove(id)
	}
	return nil
}

func (s *CategoryService) reflect(row remote.Row) (*Category, error) {
	var c Category
	if err := remote.DecodeRow(row, &c); err != nil {
		return nil, shared.NewRemoteError("decode category", err)
	}
	if s.scope.Alive() {
		s.cache.Upsert(c)
	} else {
		s.logger.Debug("skip cache splice on closed workspace",
			slog.String("table", TableCategories), slog.String("id", c.ID))
	}
	return &c, nil
}
