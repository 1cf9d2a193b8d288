package session

// Canonical storage key names. Every backend uses these and nothing else.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// Credential is the bearer pair issued by the backend on login.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsZero reports whether neither token is set.
func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Store persists the credential pair.
//
// Implementations are synchronous. A backend that cannot be read reports
// (Credential{}, false) from Get; callers treat that as "no session".
type Store interface {
	Get() (Credential, bool)
	// SetAccess overwrites the access token and leaves the refresh token alone.
	SetAccess(token string) error
	SetRefresh(token string) error
	// Clear removes both tokens. Clearing an empty store is not an error.
	Clear() error
}

// SaveCredential writes both tokens, refresh first, so a concurrent reader
// never sees an access token whose refresh token has not landed yet. An
// empty refresh token overwrites whatever an earlier session left behind.
func SaveCredential(s Store, c Credential) error {
	if err := s.SetRefresh(c.RefreshToken); err != nil {
		return err
	}
	return s.SetAccess(c.AccessToken)
}
