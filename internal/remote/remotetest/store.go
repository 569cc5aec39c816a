// Package remotetest provides in-memory doubles for the remote data service,
// for use in package tests.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Store is an in-memory remote.Store. Rows live in plain maps; filters match
// by equality the way the real store builds WHERE clauses.
type Store struct {
	tenant string

	mu     sync.Mutex
	tables map[string][]remote.Row
	procs  map[string]func(args remote.Row) (any, error)

	// FailNext makes the next write return a remote error, for testing that
	// caches stay untouched on remote failure.
	FailNext bool
}

// NewStore builds an empty store scoped to one tenant.
func NewStore(tenant string) *Store {
	return &Store{
		tenant: tenant,
		tables: make(map[string][]remote.Row),
		procs:  make(map[string]func(args remote.Row) (any, error)),
	}
}

// Seed adds rows to a table without going through Insert.
func (s *Store) Seed(table string, rows ...remote.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.tables[table] = append(s.tables[table], cloneRow(row))
	}
}

// Handle registers a procedure for Call.
func (s *Store) Handle(proc string, fn func(args remote.Row) (any, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[proc] = fn
}

// Rows returns a copy of a table's current contents.
func (s *Store) Rows(table string) []remote.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.Row, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		out = append(out, cloneRow(row))
	}
	return out
}

func (s *Store) failNext() bool {
	if s.FailNext {
		s.FailNext = false
		return true
	}
	return false
}

// Select implements remote.Store.
func (s *Store) Select(ctx context.Context, req remote.SelectRequest) ([]remote.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext() {
		return nil, shared.NewRemoteError("select "+req.Table, fmt.Errorf("injected failure"))
	}
	var out []remote.Row
	for _, row := range s.tables[req.Table] {
		if matches(row, req.Filter) {
			out = append(out, cloneRow(row))
		}
	}
	if req.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a := fmt.Sprint(out[i][req.OrderBy])
			b := fmt.Sprint(out[j][req.OrderBy])
			if req.Desc {
				return a > b
			}
			return a < b
		})
	}
	if req.Offset > 0 {
		if req.Offset >= len(out) {
			return nil, nil
		}
		out = out[req.Offset:]
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Insert implements remote.Store.
func (s *Store) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext() {
		return nil, shared.NewRemoteError("insert "+table, fmt.Errorf("injected failure"))
	}
	stored := cloneRow(row)
	if _, ok := stored["id"]; !ok {
		stored["id"] = uuid.NewString()
	}
	stored["owner_id"] = s.tenant
	now := time.Now().UTC()
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = now
	}
	if _, ok := stored["updated_at"]; !ok {
		stored["updated_at"] = now
	}
	s.tables[table] = append(s.tables[table], stored)
	return cloneRow(stored), nil
}

// Update implements remote.Store.
func (s *Store) Update(ctx context.Context, table, id string, patch remote.Row) (remote.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext() {
		return nil, shared.NewRemoteError("update "+table, fmt.Errorf("injected failure"))
	}
	for _, row := range s.tables[table] {
		if row["id"] == id {
			for k, v := range patch {
				row[k] = v
			}
			row["updated_at"] = time.Now().UTC()
			return cloneRow(row), nil
		}
	}
	return nil, shared.ErrNotFound
}

// Call implements remote.Store.
func (s *Store) Call(ctx context.Context, proc string, args remote.Row) (json.RawMessage, error) {
	s.mu.Lock()
	fn, ok := s.procs[proc]
	s.mu.Unlock()
	if !ok {
		return nil, shared.NewRemoteError("call "+proc, fmt.Errorf("unknown procedure"))
	}
	result, err := fn(args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func matches(row remote.Row, filter remote.Filter) bool {
	for col, want := range filter {
		got, ok := row[col]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cloneRow(row remote.Row) remote.Row {
	out := make(remote.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
