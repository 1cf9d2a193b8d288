package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/subtrackr/subtrackr-cli/api"
	"github.com/subtrackr/subtrackr-cli/session"
)

// Displayer abstracts all output of the CLI. It is also the session
// observer, so refreshes show up while a command runs.
type Displayer interface {
	session.Observer

	Banner(server, profile string)
	LoggedIn(username string)
	Registered(username string, loggedIn bool)
	LoggedOut()
	// LoginRequired is shown when a command needs a session that is missing
	// or could not be refreshed.
	LoginRequired(err error)
	Status(profile string, authenticated bool, p *api.Profile)
	Subscriptions(subs []api.Subscription)
	SubscriptionAdded(sub api.Subscription)
	SubscriptionRemoved(id api.ID)
	Summary(s api.Summary)
	Renewals(rs []api.Renewal)
	Trend(months []api.MonthSpend)
	Notifications(ns []api.Notification)
	NotificationRead(id api.ID)
	Profile(p api.Profile)
	Activities(as []api.Activity)
	PasswordResetRequested(email string)
	Done()
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w   io.Writer
	now func() time.Time
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w, now: time.Now}
}

func (p *PlainDisplayer) Banner(server, profile string) {
	fmt.Fprintf(p.w, "=== SubTrackr (%s, profile %s) ===\n", server, profile)
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) AccessTokenRejected() {
	fmt.Fprintln(p.w, "Access token rejected (401), refreshing...")
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Refreshing access token...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) Retrying() {
	fmt.Fprintln(p.w, "Retrying request with the new token...")
}

func (p *PlainDisplayer) SessionExpired() {
	fmt.Fprintln(p.w, "Session expired, stored tokens were cleared.")
}

func (p *PlainDisplayer) LoggedIn(username string) {
	fmt.Fprintf(p.w, "Logged in as %s.\n", username)
}

func (p *PlainDisplayer) Registered(username string, loggedIn bool) {
	fmt.Fprintf(p.w, "Account %s created.\n", username)
	if !loggedIn {
		fmt.Fprintln(p.w, "Log in with: subtrackr login -username "+username)
	}
}

func (p *PlainDisplayer) LoggedOut() {
	fmt.Fprintln(p.w, "Logged out.")
}

func (p *PlainDisplayer) LoginRequired(err error) {
	if err != nil {
		fmt.Fprintf(p.w, "Not authenticated: %v\n", err)
	}
	fmt.Fprintln(p.w, "Please log in: subtrackr login -username <name>")
}

func (p *PlainDisplayer) Status(profile string, authenticated bool, prof *api.Profile) {
	fmt.Fprintln(p.w, renderStatus(profile, authenticated, prof))
}

func (p *PlainDisplayer) Subscriptions(subs []api.Subscription) {
	fmt.Fprintln(p.w, renderSubscriptions(subs, false))
}

func (p *PlainDisplayer) SubscriptionAdded(sub api.Subscription) {
	fmt.Fprintf(p.w, "Added %s (%s, %s) with id %s.\n", sub.Name, sub.Price, sub.Cycle, sub.ID)
}

func (p *PlainDisplayer) SubscriptionRemoved(id api.ID) {
	fmt.Fprintf(p.w, "Removed subscription %s.\n", id)
}

func (p *PlainDisplayer) Summary(s api.Summary) {
	fmt.Fprintln(p.w, renderSummary(s, false))
}

func (p *PlainDisplayer) Renewals(rs []api.Renewal) {
	fmt.Fprintln(p.w, renderRenewals(rs, false))
}

func (p *PlainDisplayer) Trend(months []api.MonthSpend) {
	fmt.Fprintln(p.w, renderTrend(months))
}

func (p *PlainDisplayer) Notifications(ns []api.Notification) {
	fmt.Fprintln(p.w, renderNotifications(ns, p.now()))
}

func (p *PlainDisplayer) NotificationRead(id api.ID) {
	fmt.Fprintf(p.w, "Notification %s marked as read.\n", id)
}

func (p *PlainDisplayer) Profile(prof api.Profile) {
	fmt.Fprintln(p.w, renderProfile(prof))
}

func (p *PlainDisplayer) Activities(as []api.Activity) {
	fmt.Fprintln(p.w, renderActivities(as, p.now(), false))
}

func (p *PlainDisplayer) PasswordResetRequested(email string) {
	fmt.Fprintf(p.w, "If %s belongs to an account, a reset link is on its way.\n", email)
}

func (p *PlainDisplayer) Done() {}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct {
	session.NopObserver
}

func (NoopDisplayer) Banner(_, _ string)                      {}
func (NoopDisplayer) LoggedIn(_ string)                       {}
func (NoopDisplayer) Registered(_ string, _ bool)             {}
func (NoopDisplayer) LoggedOut()                              {}
func (NoopDisplayer) LoginRequired(_ error)                   {}
func (NoopDisplayer) Status(_ string, _ bool, _ *api.Profile) {}
func (NoopDisplayer) Subscriptions(_ []api.Subscription)      {}
func (NoopDisplayer) SubscriptionAdded(_ api.Subscription)    {}
func (NoopDisplayer) SubscriptionRemoved(_ api.ID)            {}
func (NoopDisplayer) Summary(_ api.Summary)                   {}
func (NoopDisplayer) Renewals(_ []api.Renewal)                {}
func (NoopDisplayer) Trend(_ []api.MonthSpend)                {}
func (NoopDisplayer) Notifications(_ []api.Notification)      {}
func (NoopDisplayer) NotificationRead(_ api.ID)               {}
func (NoopDisplayer) Profile(_ api.Profile)                   {}
func (NoopDisplayer) Activities(_ []api.Activity)             {}
func (NoopDisplayer) PasswordResetRequested(_ string)         {}
func (NoopDisplayer) Done()                                   {}
func (NoopDisplayer) Fatal(_ error)                           {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner(server, profile string) {
	t.p.Send(MsgBanner{Server: server, Profile: profile})
}

func (t *ProgramDisplayer) AccessTokenRejected() {
	t.p.Send(MsgAccessTokenRejected{})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) Retrying() {
	t.p.Send(MsgRetrying{})
}

func (t *ProgramDisplayer) SessionExpired() {
	t.p.Send(MsgSessionExpired{})
}

func (t *ProgramDisplayer) LoggedIn(username string) {
	t.p.Send(MsgLoggedIn{Username: username})
}

func (t *ProgramDisplayer) Registered(username string, loggedIn bool) {
	t.p.Send(MsgRegistered{Username: username, LoggedIn: loggedIn})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) LoginRequired(err error) {
	t.p.Send(MsgLoginRequired{Err: err})
}

func (t *ProgramDisplayer) Status(profile string, authenticated bool, p *api.Profile) {
	t.p.Send(MsgStatus{Profile: profile, Authenticated: authenticated, User: p})
}

func (t *ProgramDisplayer) Subscriptions(subs []api.Subscription) {
	t.p.Send(MsgSubscriptions{Items: subs})
}

func (t *ProgramDisplayer) SubscriptionAdded(sub api.Subscription) {
	t.p.Send(MsgSubscriptionAdded{Subscription: sub})
}

func (t *ProgramDisplayer) SubscriptionRemoved(id api.ID) {
	t.p.Send(MsgSubscriptionRemoved{ID: id})
}

func (t *ProgramDisplayer) Summary(s api.Summary) {
	t.p.Send(MsgSummary{Summary: s})
}

func (t *ProgramDisplayer) Renewals(rs []api.Renewal) {
	t.p.Send(MsgRenewals{Items: rs})
}

func (t *ProgramDisplayer) Trend(months []api.MonthSpend) {
	t.p.Send(MsgTrend{Months: months})
}

func (t *ProgramDisplayer) Notifications(ns []api.Notification) {
	t.p.Send(MsgNotifications{Items: ns})
}

func (t *ProgramDisplayer) NotificationRead(id api.ID) {
	t.p.Send(MsgNotificationRead{ID: id})
}

func (t *ProgramDisplayer) Profile(p api.Profile) {
	t.p.Send(MsgProfile{Profile: p})
}

func (t *ProgramDisplayer) Activities(as []api.Activity) {
	t.p.Send(MsgActivities{Items: as})
}

func (t *ProgramDisplayer) PasswordResetRequested(email string) {
	t.p.Send(MsgPasswordResetRequested{Email: email})
}

func (t *ProgramDisplayer) Done() {
	t.p.Send(MsgDone{})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
