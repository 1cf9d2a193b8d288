package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type ctxKey struct{}

// claims are the access token claims. Gen ties the token to the generation
// current when it was issued, so ExpireAccessTokens can void it early.
type claims struct {
	Username string `json:"username"`
	Gen      int    `json:"gen"`
	jwt.RegisteredClaims
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

func (s *Server) issueAccessLocked(username string) (string, error) {
	now := time.Now().UTC()
	c := &claims{
		Username: username,
		Gen:      s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.accessTTL)),
			Issuer:    "subtrackr-fakeapi",
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.opts.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	s.metrics.tokenIssued("access")
	return signed, nil
}

func (s *Server) issueRefreshLocked(username string) string {
	token := uuid.NewString()
	s.refreshTokens[token] = username
	s.metrics.tokenIssued("refresh")
	return token
}

func (s *Server) issuePairLocked(username string) (tokenResponse, error) {
	access, err := s.issueAccessLocked(username)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{Access: access, Refresh: s.issueRefreshLocked(username)}, nil
}

// IssueTokens returns a fresh pair for an existing user without a login call.
func (s *Server) IssueTokens(username string) (access, refresh string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return "", "", fmt.Errorf("unknown user %q", username)
	}
	pair, err := s.issuePairLocked(username)
	return pair.Access, pair.Refresh, err
}

func (s *Server) parseAccess(raw string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		return s.opts.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	current := s.generation
	s.mu.Unlock()
	if c.Gen < current {
		return nil, errors.New("token revoked")
	}
	return c, nil
}

func (s *Server) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		c, err := s.parseAccess(raw)
		if err != nil {
			s.opts.logger.Debug("access token rejected", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, c.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func usernameFrom(r *http.Request) string {
	name, _ := r.Context().Value(ctxKey{}).(string)
	return name
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[in.Username]
	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(in.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}

	pair, err := s.issuePairLocked(u.username)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.recordLocked(u.username, "security", "Logged in", "New session")
	writeJSON(w, http.StatusOK, pair)
}

// registration holds the backend's field rules for a new account.
type registration struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registration
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if errs := s.fieldErrors(in); errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.bcryptCost)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[in.Username]; exists {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"username": {"A user with that username already exists."},
		})
		return
	}
	s.users[in.Username] = &user{
		username:     in.Username,
		email:        in.Email,
		passwordHash: hash,
		joined:       time.Now().UTC(),
	}
	s.recordLocked(in.Username, "setting", "Created account", in.Email)
	s.notifyLocked(in.Username, "account", "Welcome to SubTrackr",
		"Add your first subscription to start tracking your spending")

	body := map[string]any{"username": in.Username, "email": in.Email}
	if s.opts.tokensOnRegister {
		pair, err := s.issuePairLocked(in.Username)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, err.Error())
			return
		}
		body["access"] = pair.Access
		body["refresh"] = pair.Refresh
	}
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Refresh == "" {
		writeDetail(w, http.StatusBadRequest, "refresh: This field is required.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	username, ok := s.refreshTokens[in.Refresh]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	access, err := s.issueAccessLocked(username)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := tokenResponse{Access: access}
	if s.opts.rotate {
		delete(s.refreshTokens, in.Refresh)
		resp.Refresh = s.issueRefreshLocked(username)
	}
	writeJSON(w, http.StatusOK, resp)
}

type passwordReset struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var in passwordReset
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if errs := s.fieldErrors(in); errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	// same answer whether or not the address is known
	writeDetail(w, http.StatusOK, "Password reset e-mail has been sent.")
}
