package receivables

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Table is the installments table.
const Table = "installments"

// Service is the mutation gateway for installments. Installments are created
// server-side together with their sale; this gateway only loads them and
// drives the paid/cancelled transitions.
type Service struct {
	logger *slog.Logger
	scope  shared.SessionScope
	store  remote.Store
	cache  *cache.Collection[Installment]
	now    func() time.Time
}

// NewService constructs the gateway.
func NewService(logger *slog.Logger, scope shared.SessionScope, store remote.Store, col *cache.Collection[Installment]) *Service {
	return &Service{
		logger: logger,
		scope:  scope,
		store:  store,
		cache:  col,
		now:    time.Now,
	}
}

// Cache exposes the session's installment collection.
func (s *Service) Cache() *cache.Collection[Installment] { return s.cache }

// Load replaces the cache with a fresh fetch, ordered by due date.
func (s *Service) Load(ctx context.Context, filter Filter) ([]Installment, error) {
	where := remote.Filter{}
	if filter.SaleID != nil {
		where["sale_id"] = *filter.SaleID
	}
	if filter.Status != nil {
		where["status"] = string(*filter.Status)
	}
	rows, err := s.store.Select(ctx, remote.SelectRequest{
		Table:   Table,
		Filter:  where,
		OrderBy: "due_date",
	})
	if err != nil {
		return nil, err
	}
	list := make([]Installment, 0, len(rows))
	for _, row := range rows {
		var inst Installment
		if err := remote.DecodeRow(row, &inst); err != nil {
			return nil, shared.NewRemoteError("load installments", err)
		}
		list = append(list, inst)
	}
	if s.scope.Alive() {
		s.cache.Replace(list)
	}
	return list, nil
}

// MarkPaid settles a pending or late installment, stamping the paid time.
// Settling an already-paid or cancelled installment is rejected.
func (s *Service) MarkPaid(ctx context.Context, id string) (*Installment, error) {
	shared.MustTenant(s.scope)
	current, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, StatusPaid) {
		return nil, shared.NewValidationError("status",
			fmt.Sprintf("cannot pay a %s installment", current.Status))
	}
	updated, err := s.store.Update(ctx, Table, id, remote.Row{
		"status":  string(StatusPaid),
		"paid_at": s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return s.reflect(updated)
}

// Cancel voids a pending or late installment. Cancelled is terminal.
func (s *Service) Cancel(ctx context.Context, id string) (*Installment, error) {
	shared.MustTenant(s.scope)
	current, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, StatusCancelled) {
		return nil, shared.NewValidationError("status",
			fmt.Sprintf("cannot cancel a %s installment", current.Status))
	}
	updated, err := s.store.Update(ctx, Table, id, remote.Row{
		"status": string(StatusCancelled),
	})
	if err != nil {
		return nil, err
	}
	return s.reflect(updated)
}

// current prefers the cached row and falls back to a point read, so a
// transition checked against the last snapshot still sees a row the session
// never loaded.
func (s *Service) current(ctx context.Context, id string) (*Installment, error) {
	if cached, ok := s.cache.Get(id); ok {
		return &cached, nil
	}
	rows, err := s.store.Select(ctx, remote.SelectRequest{
		Table:  Table,
		Filter: remote.Filter{"id": id},
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, shared.NewRemoteError("installment "+id, shared.ErrNotFound)
	}
	var inst Installment
	if err := remote.DecodeRow(rows[0], &inst); err != nil {
		return nil, shared.NewRemoteError("decode installment", err)
	}
	return &inst, nil
}

func (s *Service) reflect(row remote.Row) (*Installment, error) {
	var inst Installment
	if err := remote.DecodeRow(row, &inst); err != nil {
		return nil, shared.NewRemoteError("decode installment", err)
	}
	if s.scope.Alive() {
		s.cache.Upsert(inst)
	} else {
		s.logger.Debug("skip cache splice on closed workspace",
			slog.String("table", Table), slog.String("id", inst.ID))
	}
	return &inst, nil
}
