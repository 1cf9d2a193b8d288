package tui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtrackr/subtrackr-cli/api"
	"github.com/subtrackr/subtrackr-cli/session"
)

var (
	_ Displayer        = (*PlainDisplayer)(nil)
	_ Displayer        = NoopDisplayer{}
	_ Displayer        = (*ProgramDisplayer)(nil)
	_ session.Observer = (*PlainDisplayer)(nil)
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newPlain() (*PlainDisplayer, *bytes.Buffer) {
	var buf bytes.Buffer
	d := NewPlainDisplayer(&buf)
	d.now = func() time.Time { return testNow }
	return d, &buf
}

func mustDate(t *testing.T, s string) api.Date {
	t.Helper()
	d, err := api.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestPlainDisplayer_SessionEvents(t *testing.T) {
	d, buf := newPlain()

	d.AccessTokenRejected()
	d.Refreshing()
	d.RefreshFailed(errors.New("refresh rejected (401)"))
	d.SessionExpired()
	d.LoginRequired(session.ErrSessionExpired)

	out := buf.String()
	assert.Contains(t, out, "Access token rejected (401)")
	assert.Contains(t, out, "Refresh failed: refresh rejected (401)")
	assert.Contains(t, out, "Session expired")
	assert.Contains(t, out, "Please log in")
}

func TestPlainDisplayer_Subscriptions(t *testing.T) {
	d, buf := newPlain()
	d.Subscriptions([]api.Subscription{
		{ID: "7", Name: "Netflix", Price: 13.99, Cycle: api.Monthly, NextBillingDate: mustDate(t, "2026-11-15"), Category: "Entertainment"},
		{ID: "8", Name: "Domain", Price: 12, Cycle: api.Yearly, NextBillingDate: mustDate(t, "2027-03-01")},
	})

	out := buf.String()
	for _, want := range []string{"Netflix", "$13.99", "2026-11-15", "Entertainment", "yearly", "2 subscription(s)"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "\x1b[", "plain output carries no escape codes")
}

func TestPlainDisplayer_EmptyResults(t *testing.T) {
	d, buf := newPlain()
	d.Subscriptions(nil)
	d.Renewals(nil)
	d.Notifications(nil)
	d.Activities(nil)
	d.Trend(nil)

	out := buf.String()
	assert.Contains(t, out, "No subscriptions yet")
	assert.Contains(t, out, "No upcoming renewals")
	assert.Contains(t, out, "No notifications")
	assert.Contains(t, out, "No activity yet")
}

func TestPlainDisplayer_Summary(t *testing.T) {
	d, buf := newPlain()
	sub := api.Subscription{Name: "Spotify", Price: 9.99, Cycle: api.Monthly}
	d.Summary(api.Summary{
		MonthlyCost:    9.99,
		YearlyEstimate: 119.88,
		Active:         1,
		NextRenewal:    &api.Renewal{Subscription: sub, Date: mustDate(t, "2026-10-17"), DaysUntil: 1},
		Categories:     []api.CategorySpend{{Category: "Other", Monthly: 9.99, Count: 1, Percentage: 100}},
	})

	out := buf.String()
	assert.Contains(t, out, "Monthly cost:    $9.99")
	assert.Contains(t, out, "Yearly estimate: $119.88")
	assert.Contains(t, out, "Spotify on 2026-10-17 (tomorrow)")
	assert.Contains(t, out, "100.0%")
}

func TestPlainDisplayer_Renewals(t *testing.T) {
	d, buf := newPlain()
	d.Renewals([]api.Renewal{
		{Subscription: api.Subscription{Name: "Gym", Price: 30}, Date: mustDate(t, "2026-10-16"), DaysUntil: 0},
		{Subscription: api.Subscription{Name: "Adobe", Price: 600}, Date: mustDate(t, "2027-01-05"), DaysUntil: 81},
	})

	out := buf.String()
	assert.Contains(t, out, "today !")
	assert.Contains(t, out, "in 81 days")
	assert.NotContains(t, out, "in 81 days !")
}

func TestPlainDisplayer_Notifications(t *testing.T) {
	d, buf := newPlain()
	d.Notifications([]api.Notification{
		{ID: "n1", Type: api.NotificationPriceChange, Title: "Netflix price changed", Message: "Now $15.49", Timestamp: api.Timestamp{Time: testNow.Add(-2 * time.Hour)}},
		{ID: "n2", Type: api.NotificationAccount, Title: "Welcome", Timestamp: api.Timestamp{Time: testNow.Add(-72 * time.Hour)}, IsRead: true},
	})

	out := buf.String()
	assert.Contains(t, out, "1 unread")
	assert.Contains(t, out, "* [price-change] Netflix price changed  (2h ago, id n1)")
	assert.Contains(t, out, "  [account] Welcome  (3d ago, id n2)")
	assert.Contains(t, out, "Now $15.49")
}

func TestRenderTrend(t *testing.T) {
	out := renderTrend([]api.MonthSpend{
		{Month: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), Total: 50},
		{Month: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), Total: 100},
		{Month: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), Total: 0},
	})

	lines := bytes.Split([]byte(out), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, 15, bytes.Count(lines[0], []byte("#")))
	assert.Equal(t, trendBarWidth, bytes.Count(lines[1], []byte("#")))
	assert.Zero(t, bytes.Count(lines[2], []byte("#")))
	assert.Contains(t, string(lines[1]), "Nov 2026")
	assert.Contains(t, string(lines[1]), "$100.00")
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{-time.Minute, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{49 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAge(tt.d), tt.d.String())
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", formatDuration(0))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
}
