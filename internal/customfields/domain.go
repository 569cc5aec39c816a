// Package customfields manages tenant-defined fields and validates the
// key/value maps other entities attach.
package customfields

import "time"

// Kind enumerates field kinds.
type Kind string

const (
	KindText   Kind = "text"
	KindNumber Kind = "number"
	KindSelect Kind = "select"
)

func (k Kind) valid() bool {
	switch k {
	case KindText, KindNumber, KindSelect:
		return true
	}
	return false
}

// CustomField is a tenant-defined attribute definition. Options is non-empty
// exactly when Kind is select.
type CustomField struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Options   []string  `json:"options,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key implements cache.Entity.
func (f CustomField) Key() string { return f.ID }

type CreateFieldRequest struct {
	Name    string   `json:"name" validate:"required,max=100"`
	Kind    Kind     `json:"kind" validate:"required"`
	Options []string `json:"options,omitempty" validate:"omitempty,dive,min=1,max=100"`
}

type UpdateFieldRequest struct {
	Name    *string   `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Options *[]string `json:"options,omitempty" validate:"omitempty,dive,min=1,max=100"`
}
