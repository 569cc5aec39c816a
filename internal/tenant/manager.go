package tenant

import (
	"context"
	"sync"
)

// Manager tracks the live workspace of each session. One workspace per
// session token; a new sign-in always gets a new workspace.
type Manager struct {
	deps Dependencies
	open func(ctx context.Context, tenantID string, deps Dependencies) (*Workspace, error)

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewManager constructs a Manager.
func NewManager(deps Dependencies) *Manager {
	return &Manager{
		deps:       deps,
		open:       Open,
		workspaces: make(map[string]*Workspace),
	}
}

// OpenFor builds and registers a fresh workspace for the session. An
// existing workspace under the same session id is closed first.
func (m *Manager) OpenFor(ctx context.Context, sessionID, tenantID string) (*Workspace, error) {
	w, err := m.open(ctx, tenantID, m.deps)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	old := m.workspaces[sessionID]
	m.workspaces[sessionID] = w
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return w, nil
}

// Get returns the session's workspace, if any.
func (m *Manager) Get(sessionID string) (*Workspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workspaces[sessionID]
	return w, ok
}

// CloseFor tears down and forgets the session's workspace. Safe to call for
// unknown sessions.
func (m *Manager) CloseFor(sessionID string) {
	m.mu.Lock()
	w := m.workspaces[sessionID]
	delete(m.workspaces, sessionID)
	m.mu.Unlock()
	if w != nil {
		w.Close()
	}
}

// Shutdown closes every workspace, for process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	workspaces := m.workspaces
	m.workspaces = make(map[string]*Workspace)
	m.mu.Unlock()
	for _, w := range workspaces {
		w.Close()
	}
}
