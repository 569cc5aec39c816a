// Package remote defines the boundary to the hosted data service: a generic
// query/write surface, named aggregate procedures, and a per-table change
// stream. Everything above this package treats the service as opaque.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
)

// Row is a single record as returned by the remote store.
type Row map[string]any

// Filter matches columns by equality. A nil value matches SQL NULL.
type Filter map[string]any

// SelectRequest describes a tenant-scoped read.
type SelectRequest struct {
	Table   string
	Filter  Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Store is the request/response surface of the remote data service. Every
// call is implicitly scoped to the authenticated tenant; a request touching
// another tenant's row fails, it never silently returns empty.
type Store interface {
	Select(ctx context.Context, req SelectRequest) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, id string, patch Row) (Row, error)
	// Call invokes a named server-side aggregate procedure.
	Call(ctx context.Context, proc string, args Row) (json.RawMessage, error)
}

// EventKind classifies a change-stream event.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is a row-level change delivered by the change stream.
type Event struct {
	Kind   EventKind       `json:"kind"`
	Table  string          `json:"table"`
	Tenant string          `json:"tenant"`
	Row    json.RawMessage `json:"row"`
}

// Subscription is a handle to an active change-stream subscription. Close is
// idempotent and safe to call from any exit path.
type Subscription interface {
	Close() error
}

// Stream delivers change events for one table, filtered to one tenant.
// Events for the same row arrive in publish order; the stream never reorders.
type Stream interface {
	Subscribe(ctx context.Context, table, tenant string, fn func(Event)) (Subscription, error)
}

// Decode unmarshals a raw event row into dst.
func Decode(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("remote: decode row: %w", err)
	}
	return nil
}

// DecodeRow converts a store row into dst through its JSON form, so entity
// structs share one set of column tags for both the store and the stream.
func DecodeRow(row Row, dst any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("remote: encode row: %w", err)
	}
	return Decode(raw, dst)
}
