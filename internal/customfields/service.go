package customfields

import (
	"context"
	"log/slog"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Table is the custom fields table.
const Table = "custom_fields"

// Service is the mutation gateway for custom fields.
type Service struct {
	logger   *slog.Logger
	scope    shared.SessionScope
	store    remote.Store
	cache    *cache.Collection[CustomField]
	validate *validator.Validate
}

// NewService constructs the gateway.
func NewService(logger *slog.Logger, scope shared.SessionScope, store remote.Store, col *cache.Collection[CustomField]) *Service {
	return &Service{
		logger:   logger,
		scope:    scope,
		store:    store,
		cache:    col,
		validate: validator.New(),
	}
}

// Cache exposes the session's field collection.
func (s *Service) Cache() *cache.Collection[CustomField] { return s.cache }

func checkKindOptions(kind Kind, options []string) error {
	if !kind.valid() {
		return shared.NewValidationError("kind", "must be text, number or select")
	}
	if kind == KindSelect && len(options) == 0 {
		return shared.NewValidationError("options", "select fields need at least one option")
	}
	if kind != KindSelect && len(options) > 0 {
		return shared.NewValidationError("options", "only select fields carry options")
	}
	return nil
}

// Load replaces the cache with a fresh fetch.
func (s *Service) Load(ctx context.Context) ([]CustomField, error) {
	rows, err := s.store.Select(ctx, remote.SelectRequest{
		Table:   Table,
		Filter:  remote.Filter{"is_active": true},
		OrderBy: "name",
	})
	if err != nil {
		return nil, err
	}
	fields := make([]CustomField, 0, len(rows))
	for _, row := range rows {
		var f CustomField
		if err := remote.DecodeRow(row, &f); err != nil {
			return nil, shared.NewRemoteError("load custom fields", err)
		}
		fields = append(fields, f)
	}
	if s.scope.Alive() {
		s.cache.Replace(fields)
	}
	return fields, nil
}

// Create validates the kind/options invariant and inserts the field.
func (s *Service) Create(ctx context.Context, req CreateFieldRequest) (*CustomField, error) {
	shared.MustTenant(s.scope)
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if err := checkKindOptions(req.Kind, req.Options); err != nil {
		return nil, err
	}
	inserted, err := s.store.Insert(ctx, Table, remote.Row{
		"name":      req.Name,
		"kind":      string(req.Kind),
		"options":   req.Options,
		"is_active": true,
	})
	if err != nil {
		return nil, err
	}
	return s.reflect(inserted)
}

// Update patches a field. The kind is immutable; changing options re-checks
// the invariant against the cached kind.
func (s *Service) Update(ctx context.Context, id string, req UpdateFieldRequest) (*CustomField, error) {
	shared.MustTenant(s.scope)
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	patch := remote.Row{}
	if req.Name != nil {
		patch["name"] = *req.Name
	}
	if req.Options != nil {
		current, ok := s.cache.Get(id)
		if !ok {
			return nil, shared.NewRemoteError("update custom field", shared.ErrNotFound)
		}
		if err := checkKindOptions(current.Kind, *req.Options); err != nil {
			return nil, err
		}
		patch["options"] = *req.Options
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

// SoftDelete flips the active flag; the change stream evicts the cached row.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	shared.MustTenant(s.scope)
	if _, err := s.store.Update(ctx, Table, id, remote.Row{"is_active": false}); err != nil {
		return err
	}
	if s.scope.Alive() {
		s.cache.Remove(id)
	}
	return nil
}

func (s *Service) reflect(row remote.Row) (*CustomField, error) {
	var f CustomField
	if err := remote.DecodeRow(row, &f); err != nil {
		return nil, shared.NewRemoteError("decode custom field", err)
	}
	if s.scope.Alive() {
		s.cache.Upsert(f)
	}
	return &f, nil
}

// ValidateValues checks an attached key/value map against the cached field
// definitions: unknown names, non-numeric numbers and off-list select values
// all fail.
func (s *Service) ValidateValues(values map[string]string) error {
	for name, value := range values {
		var field *CustomField
		for _, f := range s.cache.Snapshot() {
			if f.Name == name {
				field = &f
				break
			}
		}
		if field == nil {
			return shared.NewValidationError(name, "unknown custom field")
		}
		switch field.Kind {
		case KindNumber:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return shared.NewValidationError(name, "must be numeric")
			}
		case KindSelect:
			if !slices.Contains(field.Options, value) {
				return shared.NewValidationError(name, "not one of the configured options")
			}
		}
	}
	return nil
}
