// Package fakeapi is an in-memory SubTrackr backend. It issues HS256 JWT
// access tokens and opaque refresh tokens, and exposes hooks to expire or
// revoke them so clients can be driven through every session path.
package fakeapi

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultAccessTTL = 5 * time.Minute
	defaultSecret    = "subtrackr-dev-secret"
)

type options struct {
	accessTTL        time.Duration
	rotate           bool
	tokensOnRegister bool
	secret           []byte
	bcryptCost       int
	logger           *zap.Logger
	registerer       prometheus.Registerer
}

type Option func(*options)

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(o *options) { o.accessTTL = d }
}

// WithRotation makes every refresh return a new refresh token and retire
// the old one.
func WithRotation(rotate bool) Option {
	return func(o *options) { o.rotate = rotate }
}

// WithTokensOnRegister makes registration answer with a token pair.
func WithTokensOnRegister(on bool) Option {
	return func(o *options) { o.tokensOnRegister = on }
}

func WithSecret(secret string) Option {
	return func(o *options) { o.secret = []byte(secret) }
}

// WithBcryptCost trades hashing cost for test speed.
func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics registers request and token counters on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

type user struct {
	username     string
	email        string
	passwordHash []byte
	joined       time.Time
}

// Server is the fake backend. It is safe for concurrent use.
type Server struct {
	opts     options
	router   chi.Router
	validate *validator.Validate
	metrics  *metrics

	mu            sync.Mutex
	users         map[string]*user // key = username
	refreshTokens map[string]string
	generation    int
	subs          map[string][]*subscription // key = username
	activities    map[string][]activity
	notifications map[string][]*notification
	calls         map[string]int
	entropy       *ulid.MonotonicEntropy
}

// New returns a Server with its routes mounted under /api.
func New(opts ...Option) *Server {
	o := options{
		accessTTL:  DefaultAccessTTL,
		rotate:     true,
		secret:     []byte(defaultSecret),
		bcryptCost: bcrypt.DefaultCost,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		opts:          o,
		validate:      newValidator(),
		users:         make(map[string]*user),
		refreshTokens: make(map[string]string),
		subs:          make(map[string][]*subscription),
		activities:    make(map[string][]activity),
		notifications: make(map[string][]*notification),
		calls:         make(map[string]int),
		entropy:       ulid.Monotonic(rand.Reader, 0),
	}
	if o.registerer != nil {
		s.metrics = newMetrics(o.registerer)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.countCalls, s.instrument)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Post("/token/refresh", s.handleRefresh)
		r.Post("/auth/password/reset/", s.handlePasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAccessToken)

			r.Get("/subscriptions/", s.handleListSubscriptions)
			r.Post("/subscriptions/", s.handleCreateSubscription)
			r.Get("/subscriptions/{id}/", s.handleGetSubscription)
			r.Put("/subscriptions/{id}/", s.handleUpdateSubscription)
			r.Delete("/subscriptions/{id}/", s.handleDeleteSubscription)

			r.Get("/user/profile/me/", s.handleProfile)
			r.Get("/activities/", s.handleActivities)
			r.Get("/notifications/", s.handleNotifications)
			r.Post("/notifications/{id}/read/", s.handleMarkRead)
		})
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()

		s.opts.logger.Debug("fakeapi request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

// Calls returns how often "METHOD /path" was requested, e.g.
// Calls("POST /api/token/refresh").
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	clear(s.refreshTokens)
	s.mu.Unlock()
}

// AddUser registers an account directly.
func (s *Server) AddUser(username, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.bcryptCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &user{
		username:     username,
		email:        email,
		passwordHash: hash,
		joined:       time.Now().UTC(),
	}
	return nil
}

// Notify adds a notification for username.
func (s *Server) Notify(username, kind, title, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked(username, kind, title, message)
}

func (s *Server) notifyLocked(username, kind, title, message string) {
	s.notifications[username] = append(s.notifications[username], &notification{
		ID:        s.newIDLocked(),
		Type:      kind,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) recordLocked(username, kind, action, subject string) {
	s.activities[username] = append(s.activities[username], activity{
		ID:      s.newIDLocked(),
		Type:    kind,
		Action:  action,
		Subject: subject,
		Date:    time.Now().UTC(),
	})
}

func (s *Server) newIDLocked() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
