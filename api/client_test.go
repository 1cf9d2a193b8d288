package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/subtrackr/subtrackr-cli/internal/fakeapi"
	"github.com/subtrackr/subtrackr-cli/session"
)

const (
	testUser     = "alice"
	testPassword = "Str0ng!pass"
)

type harness struct {
	fake   *fakeapi.Server
	server *httptest.Server
	store  *session.MemoryStore
	client *Client
}

func newHarness(t *testing.T, fakeOpts ...fakeapi.Option) *harness {
	t.Helper()

	fake := fakeapi.New(append([]fakeapi.Option{fakeapi.WithBcryptCost(bcrypt.MinCost)}, fakeOpts...)...)
	require.NoError(t, fake.AddUser(testUser, "alice@example.com", testPassword))
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	h := &harness{
		fake:   fake,
		server: ts,
		store:  session.NewMemoryStore(),
	}
	return h.withClient(t, false)
}

func (h *harness) withClient(t *testing.T, allowNonRefreshable bool) *harness {
	t.Helper()
	httpClient, err := retry.NewClient(retry.WithMaxRetries(0))
	require.NoError(t, err)

	base := h.server.URL + "/api"
	mgr := session.NewManager(h.store, httpClient, RefreshURL(base), allowNonRefreshable)
	h.client = New(base, mgr, httpClient)
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.client.Login(context.Background(), testUser, testPassword))
}

func TestLogin_StoresPair(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	cred, ok := h.store.Get()
	require.True(t, ok)
	assert.NotEmpty(t, cred.AccessToken)
	assert.NotEmpty(t, cred.RefreshToken)
	assert.True(t, h.client.Sessions().IsAuthenticated())
}

func TestLogin_Rejected(t *testing.T) {
	h := newHarness(t)

	err := h.client.Login(context.Background(), testUser, "wrong")
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.True(t, IsLoginFailure(err))

	var rErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, http.StatusUnauthorized, rErr.Response.StatusCode)
	assert.Contains(t, rErr.ErrorDescription, "No active account")

	_, ok := h.store.Get()
	assert.False(t, ok)
}

func TestLogin_ValidatesBeforeSending(t *testing.T) {
	h := newHarness(t)

	err := h.client.Login(context.Background(), "", "")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields(), "username")
	assert.Contains(t, vErr.Fields(), "password")
	assert.Zero(t, h.fake.Calls("POST /api/login"))
}

func TestLogin_AcceptsAlternateFieldNames(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "oauth", body: `{"access_token":"A1","refresh_token":"R1"}`},
		{name: "camel", body: `{"accessToken":"A1","refreshToken":"R1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			httpClient, err := retry.NewClient(retry.WithMaxRetries(0))
			require.NoError(t, err)
			store := session.NewMemoryStore()
			c := New(ts.URL, session.NewManager(store, httpClient, RefreshURL(ts.URL), false), httpClient)

			require.NoError(t, c.Login(context.Background(), "u", "p"))
			cred, _ := store.Get()
			assert.Equal(t, session.Credential{AccessToken: "A1", RefreshToken: "R1"}, cred)
		})
	}
}

func TestLogin_NonRefreshablePair(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access":"A1"}`))
	}))
	defer ts.Close()

	httpClient, err := retry.NewClient(retry.WithMaxRetries(0))
	require.NoError(t, err)

	t.Run("refused by default", func(t *testing.T) {
		store := session.NewMemoryStore()
		c := New(ts.URL, session.NewManager(store, httpClient, RefreshURL(ts.URL), false), httpClient)
		assert.ErrorIs(t, c.Login(context.Background(), "u", "p"), session.ErrNoRefreshToken)
		_, ok := store.Get()
		assert.False(t, ok)
	})

	t.Run("kept when allowed", func(t *testing.T) {
		store := session.NewMemoryStore()
		c := New(ts.URL, session.NewManager(store, httpClient, RefreshURL(ts.URL), true), httpClient)
		require.NoError(t, c.Login(context.Background(), "u", "p"))
		assert.True(t, c.Sessions().IsAuthenticated())
	})
}

func TestCallsBeforeLogin(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.ListSubscriptions(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrUnauthenticated)
	assert.Zero(t, h.fake.Calls("GET /api/subscriptions/"))
}

func TestExpiredAccessTokenIsRefreshedTransparently(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.fake.AddSubscription(testUser, "Netflix", 13.99, "monthly", "2026-11-15", "Entertainment")
	before, _ := h.store.Get()

	h.fake.ExpireAccessTokens()

	subs, err := h.client.ListSubscriptions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Netflix", subs[0].Name)

	assert.Equal(t, 1, h.fake.Calls("POST /api/token/refresh"))
	assert.Equal(t, 2, h.fake.Calls("GET /api/subscriptions/"))

	after, ok := h.store.Get()
	require.True(t, ok)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken, "rotated refresh token stored")
}

func TestConcurrentCallsShareOneRefresh(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.fake.ExpireAccessTokens()

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.client.Profile(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	// a refresh that lands after every 401 serves all of them; with rotation a
	// second exchange would have failed on the retired refresh token
	assert.Equal(t, 1, h.fake.Calls("POST /api/token/refresh"))
}

func TestRevokedSessionExpires(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.fake.ExpireAccessTokens()
	h.fake.RevokeRefreshTokens()

	_, err := h.client.Profile(context.Background())
	require.ErrorIs(t, err, session.ErrSessionExpired)
	assert.True(t, session.IsTerminal(err))

	_, ok := h.store.Get()
	assert.False(t, ok, "credentials cleared")

	// the next call fails locally
	_, err = h.client.Profile(context.Background())
	assert.ErrorIs(t, err, session.ErrUnauthenticated)
	assert.Equal(t, 1, h.fake.Calls("GET /api/user/profile/me/"))
}

func TestFinalUnauthorizedIsAuthFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/token/refresh" {
			_, _ = w.Write([]byte(`{"access":"A2"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"You do not have permission"}`))
	}))
	defer ts.Close()

	httpClient, err := retry.NewClient(retry.WithMaxRetries(0))
	require.NoError(t, err)
	store := session.NewMemoryStore()
	require.NoError(t, session.SaveCredential(store, session.Credential{AccessToken: "A1", RefreshToken: "R1"}))
	c := New(ts.URL, session.NewManager(store, httpClient, RefreshURL(ts.URL), false), httpClient)

	_, err = c.Profile(context.Background())
	assert.ErrorIs(t, err, session.ErrAuthFailure)
	assert.False(t, errors.Is(err, session.ErrSessionExpired))

	cred, ok := store.Get()
	require.True(t, ok, "a second 401 does not end the session")
	assert.Equal(t, "A2", cred.AccessToken)
}

func TestSubscriptionCRUD(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	next, err := ParseDate("2026-11-15")
	require.NoError(t, err)

	created, err := h.client.CreateSubscription(ctx, SubscriptionInput{
		Name:            "Spotify",
		Price:           9.99,
		Cycle:           Monthly,
		NextBillingDate: next,
		Category:        "Entertainment",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, Money(9.99), created.Price)
	assert.Equal(t, "2026-11-15", created.NextBillingDate.String())

	_, err = h.client.CreateSubscription(ctx, SubscriptionInput{
		Name:            "Adobe",
		Price:           599.88,
		Cycle:           Yearly,
		NextBillingDate: next,
		Category:        "Work Tools",
	})
	require.NoError(t, err)

	all, err := h.client.ListSubscriptions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	work, err := h.client.ListSubscriptions(ctx, "Work Tools")
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, "Adobe", work[0].Name)

	updated, err := h.client.UpdateSubscription(ctx, created.ID, SubscriptionInput{
		Name:            "Spotify Family",
		Price:           16.99,
		Cycle:           Monthly,
		NextBillingDate: next,
		Category:        "Entertainment",
	})
	require.NoError(t, err)
	assert.Equal(t, "Spotify Family", updated.Name)

	got, err := h.client.GetSubscription(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, Money(16.99), got.Price)

	require.NoError(t, h.client.DeleteSubscription(ctx, created.ID))
	_, err = h.client.GetSubscription(ctx, created.ID)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestCreateSubscription_ValidatesBeforeSending(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, err := h.client.CreateSubscription(context.Background(), SubscriptionInput{
		Price: -1,
		Cycle: "weekly",
		Logo:  "not a url",
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	fields := vErr.Fields()
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "price")
	assert.Contains(t, fields, "cycle")
	assert.Contains(t, fields, "next_billing_date")
	assert.Contains(t, fields, "logo")
	assert.Zero(t, h.fake.Calls("POST /api/subscriptions/"))
}

func TestProfileActivitiesNotifications(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	p, err := h.client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, testUser, p.DisplayName())
	assert.Equal(t, "alice@example.com", p.Email)

	next, _ := ParseDate("2026-12-01")
	_, err = h.client.CreateSubscription(ctx, SubscriptionInput{
		Name: "Netflix", Price: 13.99, Cycle: Monthly, NextBillingDate: next,
	})
	require.NoError(t, err)

	acts, err := h.client.Activities(ctx)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "Added new subscription", acts[0].Action, "newest first")
	assert.Equal(t, "Netflix", acts[0].Subject)

	h.fake.Notify(testUser, "tip", "Save on Adobe", "Switch to yearly")
	ns, err := h.client.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, NotificationTip, ns[0].Type)
	assert.Equal(t, 1, UnreadCount(ns))

	require.NoError(t, h.client.MarkNotificationRead(ctx, ns[0].ID))
	ns, err = h.client.Notifications(ctx)
	require.NoError(t, err)
	assert.Zero(t, UnreadCount(ns))

	assert.True(t, IsNotFound(h.client.MarkNotificationRead(ctx, "missing")))
}

func TestRegister(t *testing.T) {
	t.Run("account only", func(t *testing.T) {
		h := newHarness(t)
		loggedIn, err := h.client.Register(context.Background(), RegisterInput{
			Username: "bob", Email: "bob@example.com", Password: "Pa55word!",
		})
		require.NoError(t, err)
		assert.False(t, loggedIn)
		assert.False(t, h.client.Sessions().IsAuthenticated())
	})

	t.Run("backend returns tokens", func(t *testing.T) {
		h := newHarness(t, fakeapi.WithTokensOnRegister(true))
		loggedIn, err := h.client.Register(context.Background(), RegisterInput{
			Username: "bob", Email: "bob@example.com", Password: "Pa55word!",
		})
		require.NoError(t, err)
		assert.True(t, loggedIn)
		assert.True(t, h.client.Sessions().IsAuthenticated())
	})

	t.Run("weak password rejected locally", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.client.Register(context.Background(), RegisterInput{
			Username: "bob", Email: "bob@example.com", Password: "password",
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Fields(), "password")
		assert.Zero(t, h.fake.Calls("POST /api/register"))
	})

	t.Run("duplicate username", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.client.Register(context.Background(), RegisterInput{
			Username: testUser, Email: "other@example.com", Password: "Pa55word!",
		})
		assert.ErrorIs(t, err, ErrLoginFailed)
	})
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	require.NoError(t, h.client.Logout())
	require.NoError(t, h.client.Logout())
	assert.False(t, h.client.Sessions().IsAuthenticated())
}

func TestRequestPasswordReset(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.client.RequestPasswordReset(context.Background(), "alice@example.com"))

	var vErr *ValidationError
	assert.ErrorAs(t, h.client.RequestPasswordReset(context.Background(), "nope"), &vErr)
	assert.Equal(t, 1, h.fake.Calls("POST /api/auth/password/reset/"))
}

func TestListSubscriptions_TolerantDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"count": 1,
			"results": [{
				"id": 42,
				"name": "iCloud",
				"price": "2.99",
				"cycle": "monthly",
				"next_billing_date": "2026-10-20T00:00:00Z",
				"category": "Utilities",
				"logo": ""
			}]
		}`))
	}))
	defer ts.Close()

	httpClient, err := retry.NewClient(retry.WithMaxRetries(0))
	require.NoError(t, err)
	store := session.NewMemoryStore()
	require.NoError(t, session.SaveCredential(store, session.Credential{AccessToken: "A1", RefreshToken: "R1"}))
	c := New(ts.URL, session.NewManager(store, httpClient, RefreshURL(ts.URL), false), httpClient,
		WithClock(func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }))

	subs, err := c.ListSubscriptions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, ID("42"), subs[0].ID)
	assert.Equal(t, Money(2.99), subs[0].Price)
	assert.Equal(t, "2026-10-20", subs[0].NextBillingDate.String())

	// views computed against the injected clock
	sum, err := c.Summary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sum.NextRenewal)
	assert.Equal(t, 4, sum.NextRenewal.DaysUntil)

	renewals, err := c.Renewals(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, renewals)
}
