package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/subtrackr/subtrackr-cli/session"
)

// tokenPair accepts the token field spellings seen from SubTrackr
// deployments: the backend's own, OAuth 2.0 and camelCase.
type tokenPair struct {
	Access            string `json:"access"`
	Refresh           string `json:"refresh"`
	AccessToken       string `json:"access_token"`
	RefreshToken      string `json:"refresh_token"`
	AccessTokenCamel  string `json:"accessToken"`
	RefreshTokenCamel string `json:"refreshToken"`
}

func (p tokenPair) credential() session.Credential {
	return session.Credential{
		AccessToken:  firstNonEmpty(p.Access, p.AccessToken, p.AccessTokenCamel),
		RefreshToken: firstNonEmpty(p.Refresh, p.RefreshToken, p.RefreshTokenCamel),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// errorBody is the error document shape of the backend (detail) and of
// OAuth-style servers (error, error_description).
type errorBody struct {
	Detail           string `json:"detail"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func retrieveError(resp *http.Response, body []byte) *oauth2.RetrieveError {
	rErr := &oauth2.RetrieveError{Response: resp, Body: body}
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		rErr.ErrorCode = eb.Error
		rErr.ErrorDescription = firstNonEmpty(eb.ErrorDescription, eb.Detail)
	}
	return rErr
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges username and password for a token pair and stores it.
// The refresh token is written before the access token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	in := loginRequest{Username: username, Password: password}
	if err := c.validate(in); err != nil {
		return err
	}

	resp, body, err := c.postPublic(ctx, "/login", in)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %w", ErrLoginFailed, retrieveError(resp, body))
	}

	var pair tokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	cred := pair.credential()
	if cred.AccessToken == "" {
		return fmt.Errorf("%w: response has no access token", ErrLoginFailed)
	}
	if cred.RefreshToken == "" && !c.sessions.AllowsNonRefreshable() {
		return fmt.Errorf("%w: backend issued no refresh token", session.ErrNoRefreshToken)
	}

	if err := c.sessions.Login(cred); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	c.logger.Info("logged in",
		zap.String("username", username),
		zap.Bool("refreshable", cred.RefreshToken != ""))
	return nil
}

// RegisterInput is a new account.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,password_strength"`
}

// Register creates an account. Some backends answer with a token pair; the
// returned bool reports whether that left the client logged in. An access
// token without a refresh token is kept only when non-refreshable sessions
// are allowed.
func (c *Client) Register(ctx context.Context, in RegisterInput) (bool, error) {
	if err := c.validate(in); err != nil {
		return false, err
	}

	resp, body, err := c.postPublic(ctx, "/register", in)
	if err != nil {
		return false, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("%w: %w", ErrLoginFailed, retrieveError(resp, body))
	}

	var pair tokenPair
	if len(body) == 0 || json.Unmarshal(body, &pair) != nil {
		return false, nil
	}
	cred := pair.credential()
	if cred.AccessToken == "" {
		return false, nil
	}
	if cred.RefreshToken == "" && !c.sessions.AllowsNonRefreshable() {
		c.logger.Debug("registration returned a non-refreshable token, not stored")
		return false, nil
	}
	if err := c.sessions.Login(cred); err != nil {
		return false, fmt.Errorf("failed to save credentials: %w", err)
	}
	return true, nil
}

// Logout forgets the stored session. The backend keeps no server-side
// session to revoke.
func (c *Client) Logout() error {
	return c.sessions.Logout()
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestPasswordReset asks the backend to mail a reset link.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	in := passwordResetRequest{Email: email}
	if err := c.validate(in); err != nil {
		return err
	}

	resp, body, err := c.postPublic(ctx, "/auth/password/reset/", in)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Method: http.MethodPost,
			Path:   "/auth/password/reset/",
			Status: resp.StatusCode,
			Body:   string(body),
		}
	}
	return nil
}

// IsLoginFailure reports whether err is a rejected login or registration.
func IsLoginFailure(err error) bool {
	return errors.Is(err, ErrLoginFailed)
}
