package session

// State answers "is there a usable session" from the store. It holds no
// state of its own; every call re-reads the store.
type State struct {
	store Store

	// allowNonRefreshable accepts an access token that has no refresh token
	// beside it. Such a session works until its first 401.
	allowNonRefreshable bool
}

func NewState(store Store, allowNonRefreshable bool) *State {
	return &State{store: store, allowNonRefreshable: allowNonRefreshable}
}

// IsAuthenticated reports whether the store currently holds a usable access token.
func (s *State) IsAuthenticated() bool {
	_, ok := s.AccessToken()
	return ok
}

// AccessToken returns the stored access token if the session is usable.
func (s *State) AccessToken() (string, bool) {
	c, ok := s.store.Get()
	if !ok || c.AccessToken == "" {
		return "", false
	}
	if c.RefreshToken == "" && !s.allowNonRefreshable {
		return "", false
	}
	return c.AccessToken, true
}
