package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_AccessToken(t *testing.T) {
	tests := []struct {
		name        string
		cred        Credential
		allowAccess bool
		wantToken   string
		wantOK      bool
	}{
		{name: "empty store", wantOK: false},
		{
			name:      "full pair",
			cred:      Credential{AccessToken: "A1", RefreshToken: "R1"},
			wantToken: "A1",
			wantOK:    true,
		},
		{
			name: "refresh token only",
			cred: Credential{RefreshToken: "R1"},
		},
		{
			name: "access token only, not allowed",
			cred: Credential{AccessToken: "A1"},
		},
		{
			name:        "access token only, allowed",
			cred:        Credential{AccessToken: "A1"},
			allowAccess: true,
			wantToken:   "A1",
			wantOK:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore(t, tt.cred.AccessToken, tt.cred.RefreshToken)
			state := NewState(store, tt.allowAccess)

			token, ok := state.AccessToken()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantOK, state.IsAuthenticated())
		})
	}
}

func TestState_ReflectsStoreChanges(t *testing.T) {
	store := NewMemoryStore()
	state := NewState(store, false)
	assert.False(t, state.IsAuthenticated())

	assert.NoError(t, SaveCredential(store, Credential{AccessToken: "A1", RefreshToken: "R1"}))
	assert.True(t, state.IsAuthenticated())

	assert.NoError(t, store.Clear())
	assert.False(t, state.IsAuthenticated())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(ErrUnauthenticated))
	assert.True(t, IsTerminal(ErrNoRefreshToken))
	assert.True(t, IsTerminal(&wrapped{ErrSessionExpired}))
	assert.False(t, IsTerminal(ErrAuthFailure))
	assert.False(t, IsTerminal(&TransportError{Op: "request", Err: assert.AnError}))
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
