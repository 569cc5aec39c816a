package tenant

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/catalog"
	"github.com/ledgerline/ledgerline/internal/receivables"
	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/remote/remotetest"
)

type storeProvider struct {
	store *remotetest.Store
}

func (p storeProvider) Tenant(string) remote.Store { return p.store }

func newDeps(t *testing.T) (Dependencies, *remotetest.Store, *remotetest.Stream) {
	t.Helper()
	store := remotetest.NewStore("tenant-a")
	stream := remotetest.NewStream()
	return Dependencies{
		Logger: slog.Default(),
		Stores: storeProvider{store: store},
		Stream: stream,
	}, store, stream
}

func encode(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestOpenRequiresTenant(t *testing.T) {
	deps, _, _ := newDeps(t)
	_, err := Open(context.Background(), "", deps)
	require.Error(t, err)
}

func TestOpenSubscribesEveryEntityTable(t *testing.T) {
	deps, _, stream := newDeps(t)
	w, err := Open(context.Background(), "tenant-a", deps)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, 5, stream.Open())
	require.True(t, w.Alive())
	require.Equal(t, "tenant-a", w.TenantID())
}

func TestChangeEventsFlowIntoCaches(t *testing.T) {
	deps, _, stream := newDeps(t)
	w, err := Open(context.Background(), "tenant-a", deps)
	require.NoError(t, err)
	defer w.Close()

	stream.Emit(remote.Event{
		Kind: remote.EventInsert, Table: catalog.TableProducts, Tenant: "tenant-a",
		Row: encode(t, catalog.Product{ID: "p1", Name: "Anvil", IsActive: true}),
	})
	require.Equal(t, 1, w.Products.Cache().Len())

	// Soft delete arrives as an update with the flag off.
	stream.Emit(remote.Event{
		Kind: remote.EventUpdate, Table: catalog.TableProducts, Tenant: "tenant-a",
		Row: encode(t, catalog.Product{ID: "p1", Name: "Anvil", IsActive: false}),
	})
	require.Equal(t, 0, w.Products.Cache().Len())
}

func TestInstallmentSweepEventUpdatesCache(t *testing.T) {
	deps, _, stream := newDeps(t)
	w, err := Open(context.Background(), "tenant-a", deps)
	require.NoError(t, err)
	defer w.Close()

	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	stream.Emit(remote.Event{
		Kind: remote.EventInsert, Table: receivables.Table, Tenant: "tenant-a",
		Row: encode(t, receivables.Installment{
			ID: "i1", SaleID: "s1", Amount: 100, DueDate: due,
			Status: receivables.StatusPending,
		}),
	})
	stream.Emit(remote.Event{
		Kind: remote.EventUpdate, Table: receivables.Table, Tenant: "tenant-a",
		Row: encode(t, receivables.Installment{
			ID: "i1", SaleID: "s1", Amount: 100, DueDate: due,
			Status: receivables.StatusLate,
		}),
	})
	cached, ok := w.Receivables.Cache().Get("i1")
	require.True(t, ok)
	require.Equal(t, receivables.StatusLate, cached.Status)
	require.Equal(t, 1, w.Receivables.Cache().Len())
}

func TestCloseReleasesSubscriptionsAndMarksDead(t *testing.T) {
	deps, _, stream := newDeps(t)
	w, err := Open(context.Background(), "tenant-a", deps)
	require.NoError(t, err)

	w.Close()
	w.Close()
	require.False(t, w.Alive())
	require.Equal(t, 0, stream.Open())
}

func TestManagerReplacesWorkspacePerSession(t *testing.T) {
	deps, _, _ := newDeps(t)
	m := NewManager(deps)

	first, err := m.OpenFor(context.Background(), "sess-1", "tenant-a")
	require.NoError(t, err)
	second, err := m.OpenFor(context.Background(), "sess-1", "tenant-a")
	require.NoError(t, err)

	require.False(t, first.Alive())
	require.True(t, second.Alive())

	got, ok := m.Get("sess-1")
	require.True(t, ok)
	require.Same(t, second, got)
}

func TestManagerCloseFor(t *testing.T) {
	deps, _, _ := newDeps(t)
	m := NewManager(deps)
	w, err := m.OpenFor(context.Background(), "sess-1", "tenant-a")
	require.NoError(t, err)

	m.CloseFor("sess-1")
	require.False(t, w.Alive())
	_, ok := m.Get("sess-1")
	require.False(t, ok)

	m.CloseFor("unknown")
}

func TestManagerShutdown(t *testing.T) {
	deps, _, _ := newDeps(t)
	m := NewManager(deps)
	a, err := m.OpenFor(context.Background(), "sess-1", "tenant-a")
	require.NoError(t, err)
	b, err := m.OpenFor(context.Background(), "sess-2", "tenant-a")
	require.NoError(t, err)

	m.Shutdown()
	require.False(t, a.Alive())
	require.False(t, b.Alive())
}
