package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no access token was stored when the request
	// was made. Nothing was sent.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrAuthFailure marks a 401 that survived the refresh-and-retry path.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrSessionExpired means the refresh exchange failed and the stored
	// credentials were cleared. The user has to log in again.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken means a refresh was needed but no refresh token was stored.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// TransportError wraps a network-level failure (dial, TLS, timeout,
// cancellation). It is never retried by this package.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RefreshError describes a failed refresh exchange. Status is zero when the
// request never produced a response.
type RefreshError struct {
	Status int
	Body   string
	Err    error
}

func (e *RefreshError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("refresh rejected with status %d: %s", e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("refresh rejected with status %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("refresh failed: %v", e.Err)
	default:
		return "refresh failed"
	}
}

func (e *RefreshError) Unwrap() error { return e.Err }

// IsTerminal reports whether err ends the session, i.e. the caller should
// send the user back to login.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrNoRefreshToken)
}
