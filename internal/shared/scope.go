package shared

// SessionScope ties a service to the tenant session that owns it. Mutation
// gateways consult the scope before touching their cache: a mutation issued
// without a tenant is a programmer error, and a mutation completing after the
// owning workspace closed must not write into the torn-down cache.
type SessionScope interface {
	// TenantID returns the owning tenant. Never empty for a live scope.
	TenantID() string
	// Alive reports whether the owning workspace is still open.
	Alive() bool
}

// MustTenant returns the scope's tenant id, panicking when the scope carries
// no authenticated tenant. Mutations reaching this state indicate the caller
// rendered a control it should not have.
func MustTenant(scope SessionScope) string {
	if scope == nil || scope.TenantID() == "" {
		panic("shared: mutation without an authenticated tenant")
	}
	return scope.TenantID()
}
