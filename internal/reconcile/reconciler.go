// Package reconcile funnels remote change events into the session's entity
// caches. One subscription per table per session, torn down with the session.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/remote"
)

// Binding connects one table's events to one cache.
type Binding struct {
	Table string
	apply func(remote.Event) error
}

// Bind builds a binding for col. An insert whose identity is already cached
// applies as an update; deletes by unknown identity are no-ops, so duplicate
// delivery of a change this session already performed leaves the cache as is.
// Rows matching discard (soft-deleted upstream) are dropped from the cache
// even when they arrive as updates; discard may be nil.
func Bind[T cache.Entity](table string, col *cache.Collection[T], discard func(T) bool) Binding {
	return Binding{
		Table: table,
		apply: func(ev remote.Event) error {
			var row T
			if err := remote.Decode(ev.Row, &row); err != nil {
				return err
			}
			switch ev.Kind {
			case remote.EventInsert, remote.EventUpdate:
				if discard != nil && discard(row) {
					col.Remove(row.Key())
					return nil
				}
				col.Upsert(row)
			case remote.EventDelete:
				col.Remove(row.Key())
			default:
				return fmt.Errorf("reconcile: unknown event kind %q", ev.Kind)
			}
			return nil
		},
	}
}

// Reconciler owns the change-stream subscriptions of one tenant session.
type Reconciler struct {
	logger *slog.Logger
	stream remote.Stream
	tenant string

	mu     sync.Mutex
	subs   []remote.Subscription
	closed bool
}

// New constructs a reconciler for one tenant session.
func New(logger *slog.Logger, stream remote.Stream, tenant string) *Reconciler {
	return &Reconciler{logger: logger, stream: stream, tenant: tenant}
}

// Watch subscribes the binding's table. Events apply in delivery order; a row
// that fails to decode is logged and skipped rather than wedging the stream.
func (r *Reconciler) Watch(ctx context.Context, b Binding) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("reconcile: watch %s: reconciler closed", b.Table)
	}
	r.mu.Unlock()

	sub, err := r.stream.Subscribe(ctx, b.Table, r.tenant, func(ev remote.Event) {
		if ev.Tenant != r.tenant {
			return
		}
		if err := b.apply(ev); err != nil {
			r.logger.Warn("apply change event",
				slog.String("table", b.Table), slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		// Lost the race with Close; do not leak the subscription.
		_ = sub.Close()
		return fmt.Errorf("reconcile: watch %s: reconciler closed", b.Table)
	}
	r.subs = append(r.subs, sub)
	return nil
}

// Close tears down every subscription. Idempotent; required on all session
// exit paths so a stale cache never receives another tenant's events.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
