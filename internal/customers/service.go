package customers

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Table is the customers table.
const Table = "customers"

// Service is the mutation gateway for customers.
type Service struct {
	logger   *slog.Logger
	scope    shared.SessionScope
	store    remote.Store
	cache    *cache.Collection[Customer]
	validate *validator.Validate
}

// NewService constructs the gateway.
func NewService(logger *slog.Logger, scope shared.SessionScope, store remote.Store, col *cache.Collection[Customer]) *Service {
	return &Service{
		logger:   logger,
		scope:    scope,
		store:    store,
		cache:    col,
		validate: validator.New(),
	}
}

// Cache exposes the session's customer collection.
func (s *Service) Cache() *cache.Collection[Customer] { return s.cache }

func checkDiscount(dt DiscountType, value float64) error {
	if dt == "" {
		return nil
	}
	if !dt.valid() {
		return shared.NewValidationError("discount_type", "must be none, percentage or fixed")
	}
	if dt == DiscountPercentage && value > 100 {
		return shared.NewValidationError("discount_value", "percentage cannot exceed 100")
	}
	if dt == DiscountNone && value != 0 {
		return shared.NewValidationError("discount_value", "must be zero without a policy")
	}
	return nil
}

// Load replaces the cache with the active customers.
func (s *Service) Load(ctx context.Context) ([]Customer, error) {
	rows, err := s.store.Select(ctx, remote.SelectRequest{
		Table:   Table,
		Filter:  remote.Filter{"is_active": true},
		OrderBy: "name",
	})
	if err != nil {
		return nil, err
	}
	list := make([]Customer, 0, len(rows))
	for _, row := range rows {
		var c Customer
		if err := remote.DecodeRow(row, &c); err != nil {
			return nil, shared.NewRemoteError("load customers", err)
		}
		list = append(list, c)
	}
	if s.scope.Alive() {
		s.cache.Replace(list)
	}
	return list, nil
}

// Create validates and inserts a customer.
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	shared.MustTenant(s.scope)
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if req.DiscountType == "" {
		req.DiscountType = DiscountNone
	}
	if err := checkDiscount(req.DiscountType, req.DiscountValue); err != nil {
		return nil, err
	}
	row := remote.Row{
		"name":           req.Name,
		"tier":           req.Tier,
		"discount_type":  string(req.DiscountType),
		"discount_value": req.DiscountValue,
		"is_active":      true,
	}
	if req.Email != nil {
		row["email"] = *req.Email
	}
	if req.Phone != nil {
		row["phone"] = *req.Phone
	}
	if req.CreditLimit != nil {
		row["credit_limit"] = *req.CreditLimit
	}
	inserted, err := s.store.Insert(ctx, Table, row)
	if err != nil {
		return nil, err
	}
	return s.reflect(inserted)
}

// Update patches a customer, replacing the cache entry with the server row.
func (s *Service) Update(ctx context.Context, id string, req UpdateCustomerRequest) (*Customer, error) {
	shared.MustTenant(s.scope)
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	patch := remote.Row{}
	if req.Name != nil {
		patch["name"] = *req.Name
	}
	if req.Email != nil {
		patch["email"] = *req.Email
	}
	if req.Phone != nil {
		patch["phone"] = *req.Phone
	}
	if req.Tier != nil {
		patch["tier"] = *req.Tier
	}
	if req.ClearLimit {
		patch["credit_limit"] = nil
	} else if req.CreditLimit != nil {
		patch["credit_limit"] = *req.CreditLimit
	}
	if req.DiscountType != nil {
		value := 0.0
		if req.DiscountValue != nil {
			value = *req.DiscountValue
		}
		if err := checkDiscount(*req.DiscountType, value); err != nil {
			return nil, err
		}
		patch["discount_type"] = string(*req.DiscountType)
	}
	if req.DiscountValue != nil {
		patch["discount_value"] = *req.DiscountValue
	}
	if len(patch) == 0 {
		if current, ok := s.cache.Get(id); ok {
			return &current, nil
		}
		return nil, shared.NewValidationError("", "empty patch")
	}
	updated, err := s.store.Update(ctx, Table, id, patch)
	if err != nil {
		return nil, err
	}
	return s.reflect(updated)
}

// SoftDelete deactivates a customer unless any sale references them. The
// guard runs before the write; history is preserved either way.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	shared.MustTenant(s.scope)
	refs, err := s.store.Select(ctx, remote.SelectRequest{
		Table:  "sales",
		Filter: remote.Filter{"customer_id": id},
		Limit:  1,
	})
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return shared.NewConflictError("customer has recorded sales")
	}
	if _, err := s.store.Update(ctx, Table, id, remote.Row{"is_active": false}); err != nil {
		return err
	}
	if s.scope.Alive() {
		s.cache.Remove(id)
	}
	return nil
}

func (s *Service) reflect(row remote.Row) (*Customer, error) {
	var c Customer
	if err := remote.DecodeRow(row, &c); err != nil {
		return nil, shared.NewRemoteError("decode customer", err)
	}
	if s.scope.Alive() {
		s.cache.Upsert(c)
	} else {
		s.logger.Debug("skip cache splice on closed workspace",
			slog.String("table", Table), slog.String("id", c.ID))
	}
	return &c, nil
}
