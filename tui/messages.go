package tui

import (
	"github.com/subtrackr/subtrackr-cli/api"
)

// MsgBanner carries the backend and profile the command runs against.
type MsgBanner struct {
	Server  string
	Profile string
}

// MsgAccessTokenRejected signals that a resource endpoint answered 401.
type MsgAccessTokenRejected struct{}

// MsgRefreshing signals that a token refresh is in progress.
type MsgRefreshing struct{}

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgRetrying signals that the rejected request is being resent once.
type MsgRetrying struct{}

// MsgSessionExpired signals that the stored session was cleared.
type MsgSessionExpired struct{}

type MsgLoggedIn struct{ Username string }

type MsgRegistered struct {
	Username string
	LoggedIn bool
}

type MsgLoggedOut struct{}

// MsgLoginRequired sends the user back to login.
type MsgLoginRequired struct{ Err error }

type MsgStatus struct {
	Profile       string
	Authenticated bool
	User          *api.Profile
}

type MsgSubscriptions struct{ Items []api.Subscription }

type MsgSubscriptionAdded struct{ Subscription api.Subscription }

type MsgSubscriptionRemoved struct{ ID api.ID }

type MsgSummary struct{ Summary api.Summary }

type MsgRenewals struct{ Items []api.Renewal }

type MsgTrend struct{ Months []api.MonthSpend }

type MsgNotifications struct{ Items []api.Notification }

type MsgNotificationRead struct{ ID api.ID }

type MsgProfile struct{ Profile api.Profile }

type MsgActivities struct{ Items []api.Activity }

type MsgPasswordResetRequested struct{ Email string }

// MsgDone signals that the command finished.
type MsgDone struct{}

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
