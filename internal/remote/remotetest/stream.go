package remotetest

import (
	"context"
	"sync"

	"github.com/ledgerline/ledgerline/internal/remote"
)

// Stream is an in-memory remote.Stream. Emit delivers synchronously, so a
// test can assert cache state right after publishing.
type Stream struct {
	mu   sync.Mutex
	subs []*streamSub
}

type streamSub struct {
	stream *Stream
	table  string
	tenant string
	fn     func(remote.Event)
	closed bool
}

func (s *streamSub) Close() error {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	s.closed = true
	return nil
}

// NewStream builds an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Subscribe implements remote.Stream.
func (s *Stream) Subscribe(ctx context.Context, table, tenant string, fn func(remote.Event)) (remote.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &streamSub{stream: s, table: table, tenant: tenant, fn: fn}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// Emit dispatches an event to every live matching subscription.
func (s *Stream) Emit(ev remote.Event) {
	s.mu.Lock()
	var targets []func(remote.Event)
	for _, sub := range s.subs {
		if !sub.closed && sub.table == ev.Table && sub.tenant == ev.Tenant {
			targets = append(targets, sub.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range targets {
		fn(ev)
	}
}

// Open reports how many subscriptions have not been closed.
func (s *Stream) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if !sub.closed {
			n++
		}
	}
	return n
}

// Scope is a static shared.SessionScope for gateway tests.
type Scope struct {
	Tenant string
	Dead   bool
}

// TenantID implements shared.SessionScope.
func (s *Scope) TenantID() string { return s.Tenant }

// Alive implements shared.SessionScope.
func (s *Scope) Alive() bool { return !s.Dead }
