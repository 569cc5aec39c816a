package receivables

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/remote/remotetest"
	"github.com/ledgerline/ledgerline/internal/shared"
)

var frozen = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *remotetest.Store) {
	t.Helper()
	store := remotetest.NewStore("tenant-a")
	scope := &remotetest.Scope{Tenant: "tenant-a"}
	col := cache.New(cache.ByTime(func(i Installment) time.Time { return i.DueDate }))
	svc := NewService(slog.Default(), scope, store, col)
	svc.now = func() time.Time { return frozen }
	return svc, store
}

func seedInstallment(store *remotetest.Store, id string, status Status, due time.Time) {
	store.Seed(Table, remote.Row{
		"id": id, "sale_id": "sale-1", "seq": 1, "amount": 100.0,
		"due_date": due, "status": string(status),
	})
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusPending, StatusPaid))
	require.True(t, CanTransition(StatusLate, StatusPaid))
	require.True(t, CanTransition(StatusPending, StatusCancelled))
	require.True(t, CanTransition(StatusLate, StatusCancelled))

	require.False(t, CanTransition(StatusPaid, StatusPaid))
	require.False(t, CanTransition(StatusCancelled, StatusPaid))
	require.False(t, CanTransition(StatusCancelled, StatusCancelled))
	// late is reached only by the server-side sweep, never by user action
	require.False(t, CanTransition(StatusPending, StatusLate))
}

func TestMarkPaidStampsPaidAt(t *testing.T) {
	svc, store := newService(t)
	seedInstallment(store, "i1", StatusPending, frozen.AddDate(0, 0, 7))

	inst, err := svc.MarkPaid(context.Background(), "i1")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, inst.Status)
	require.NotNil(t, inst.PaidAt)
	require.True(t, inst.PaidAt.Equal(frozen))

	cached, ok := svc.Cache().Get("i1")
	require.True(t, ok)
	require.Equal(t, StatusPaid, cached.Status)
}

func TestMarkPaidLateInstallment(t *testing.T) {
	svc, store := newService(t)
	seedInstallment(store, "i1", StatusLate, frozen.AddDate(0, 0, -40))
	inst, err := svc.MarkPaid(context.Background(), "i1")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, inst.Status)
}

func TestMarkPaidTwiceRejected(t *testing.T) {
	svc, store := newService(t)
	seedInstallment(store, "i1", StatusPending, frozen)
	_, err := svc.MarkPaid(context.Background(), "i1")
	require.NoError(t, err)

	_, err = svc.MarkPaid(context.Background(), "i1")
	require.True(t, shared.IsValidation(err))
}

func TestCancelPaidRejected(t *testing.T) {
	svc, store := newService(t)
	seedInstallment(store, "i1", StatusPaid, frozen)
	_, err := svc.Cancel(context.Background(), "i1")
	require.True(t, shared.IsValidation(err))
}

func TestCancelPending(t *testing.T) {
	svc, store := newService(t)
	seedInstallment(store, "i1", StatusPending, frozen)
	inst, err := svc.Cancel(context.Background(), "i1")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, inst.Status)
	require.Nil(t, inst.PaidAt)
}

func TestTransitionFallsBackToPointRead(t *testing.T) {
	// Row never loaded into the cache: the status check reads the store.
	svc, store := newService(t)
	seedInstallment(store, "i1", StatusCancelled, frozen)
	_, err := svc.MarkPaid(context.Background(), "i1")
	require.True(t, shared.IsValidation(err))
}

func TestMarkPaidUnknownInstallment(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.MarkPaid(context.Background(), "ghost")
	require.True(t, shared.IsRemote(err))
}

func TestLoadOrdersByDueDate(t *testing.T) {
	svc, store := newService(t)
	seedInstallment(store, "later", StatusPending, frozen.AddDate(0, 2, 0))
	seedInstallment(store, "soon", StatusPending, frozen.AddDate(0, 0, 3))
	seedInstallment(store, "mid", StatusLate, frozen.AddDate(0, 1, 0))

	list, err := svc.Load(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, list, 3)

	snap := svc.Cache().Snapshot()
	require.Equal(t, "soon", snap[0].ID)
	require.Equal(t, "mid", snap[1].ID)
	require.Equal(t, "later", snap[2].ID)
}

func TestLoadFiltersByStatus(t *testing.T) {
	svc, store := newService(t)
	seedInstallment(store, "p1", StatusPending, frozen)
	seedInstallment(store, "l1", StatusLate, frozen)

	status := StatusLate
	list, err := svc.Load(context.Background(), Filter{Status: &status})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "l1", list[0].ID)
}
