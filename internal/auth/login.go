package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvcrn/turmeric/internal/credentials"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// ErrAuthenticationFailed is returned once every login endpoint has been
// tried without producing a token.
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrInvalidCredentials is joined to ErrAuthenticationFailed when every login
// endpoint answered and turned the credentials down. Outages, timeouts and
// unreadable responses never carry it.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator exchanges credentials for a bearer token.
type Authenticator struct {
	client    HTTPClient
	endpoints []string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewAuthenticator creates an authenticator that tries endpoints in order.
// An empty endpoint list falls back to DefaultLoginURLs.
func NewAuthenticator(client HTTPClient, endpoints []string, logger zerolog.Logger) *Authenticator {
	if len(endpoints) == 0 {
		endpoints = DefaultLoginURLs()
	}
	return &Authenticator{
		client:    client,
		endpoints: append([]string(nil), endpoints...),
		timeout:   LoginTimeout,
		logger:    logger,
	}
}

// Authenticate tries each login endpoint once and returns the first token.
func (a *Authenticator) Authenticate(ctx context.Context, creds credentials.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w: %w", ErrAuthenticationFailed, ErrInvalidCredentials, err)
	}

	var attempts []error
	rejected := true
	for _, endpoint := range a.endpoints {
		token, denied, err := a.login(ctx, endpoint, creds)
		if err == nil {
			a.logger.Debug().Str("endpoint", endpoint).Msg("Login succeeded")
			return token, nil
		}

		a.logger.Warn().Err(err).Str("endpoint", endpoint).Bool("rejected", denied).Msg("Login attempt failed, trying next endpoint")
		attempts = append(attempts, fmt.Errorf("%s: %w", endpoint, err))
		rejected = rejected && denied

		if ctx.Err() != nil {
			rejected = false
			break
		}
	}

	if rejected && len(attempts) > 0 {
		return "", fmt.Errorf("%w: %w: %w", ErrAuthenticationFailed, ErrInvalidCredentials, errors.Join(attempts...))
	}
	return "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, errors.Join(attempts...))
}

// login reports denied when the endpoint answered and refused the
// credentials, as opposed to being unreachable or broken.
func (a *Authenticator) login(ctx context.Context, endpoint string, creds credentials.Credentials) (token string, denied bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("email", creds.Email)
	form.Set("password", creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", false, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("failed to make login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("failed to read login response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return "", true, fmt.Errorf("login rejected with status %d", resp.StatusCode)
	default:
		return "", false, fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	if !json.Valid(body) {
		return "", false, fmt.Errorf("login response is not JSON: %s", previewBody(body))
	}
	token = gjson.GetBytes(body, tokenPath).String()
	if token == "" {
		return "", true, fmt.Errorf("login response has no %s", tokenPath)
	}

	return token, false, nil
}

func previewBody(body []byte) string {
	const limit = 120
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
