package session

import (
	"context"
	"net/http"
)

// Manager wires a store, its session state, a refresh coordinator and an
// executor together. Build one per backend and share it between callers.
type Manager struct {
	store    Store
	state    *State
	executor *Executor
}

// NewManager builds the session stack. refreshURL is the backend's refresh
// endpoint; allowNonRefreshable decides whether an access token stored
// without a refresh token counts as a session.
func NewManager(
	store Store,
	client Doer,
	refreshURL string,
	allowNonRefreshable bool,
	opts ...Option,
) *Manager {
	state := NewState(store, allowNonRefreshable)
	coordinator := NewCoordinator(store, client, refreshURL, opts...)
	return &Manager{
		store:    store,
		state:    state,
		executor: NewExecutor(state, client, coordinator, opts...),
	}
}

func (m *Manager) IsAuthenticated() bool      { return m.state.IsAuthenticated() }
func (m *Manager) AllowsNonRefreshable() bool { return m.state.allowNonRefreshable }

// Execute is Executor.Execute.
func (m *Manager) Execute(ctx context.Context, r *Request) (*http.Response, error) {
	return m.executor.Execute(ctx, r)
}

// Login stores the pair returned by a successful login.
func (m *Manager) Login(c Credential) error {
	return SaveCredential(m.store, c)
}

// Logout forgets the stored credentials.
func (m *Manager) Logout() error {
	return m.store.Clear()
}
