package shared

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	v := NewValidationError("name", "required")
	require.True(t, IsValidation(v))
	require.False(t, IsConflict(v))
	require.Equal(t, "name: required", v.Error())

	c := NewConflictError("category has active products")
	require.True(t, IsConflict(c))
	require.False(t, IsValidation(c))

	r := NewRemoteError("load products", fmt.Errorf("connection refused"))
	require.True(t, IsRemote(r))
	require.Contains(t, r.Error(), "load products")
}

func TestWrappedErrorsStillMatch(t *testing.T) {
	err := fmt.Errorf("gateway: %w", NewValidationError("", "bad input"))
	require.True(t, IsValidation(err))
}

func TestValidationErrorWithoutField(t *testing.T) {
	err := NewValidationError("", "malformed request body")
	require.Equal(t, "malformed request body", err.Error())
}

func TestMustTenantPanics(t *testing.T) {
	require.Panics(t, func() { MustTenant(&staticScope{}) })
	require.NotPanics(t, func() { MustTenant(&staticScope{tenant: "tenant-a"}) })
}

type staticScope struct {
	tenant string
}

func (s *staticScope) TenantID() string { return s.tenant }
func (s *staticScope) Alive() bool      { return true }
