package session

// Observer receives session lifecycle events. Implementations must be safe
// for concurrent use; events from concurrent requests interleave.
type Observer interface {
	// AccessTokenRejected fires when a resource endpoint answers 401.
	AccessTokenRejected()
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	// Retrying fires right before the single resend of a rejected request.
	Retrying()
	// SessionExpired fires once per failed refresh, after the store was
	// cleared. UIs send the user back to login here.
	SessionExpired()
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) AccessTokenRejected() {}
func (NopObserver) Refreshing()          {}
func (NopObserver) RefreshOK()           {}
func (NopObserver) RefreshFailed(error)  {}
func (NopObserver) Retrying()            {}
func (NopObserver) SessionExpired()      {}
