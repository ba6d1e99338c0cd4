package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvcrn/turmeric/internal/credentials"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// TokenAuthenticator exchanges credentials for a token
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, creds credentials.Credentials) (string, error)
}

// Session owns the bearer token shared by every resource fetch. The token is
// only replaced through Login or Reauthenticate; concurrent callers that saw
// the same expired token share a single login request.
type Session struct {
	authenticator TokenAuthenticator
	creds         credentials.CredentialsFetcher
	logger        zerolog.Logger

	mu    sync.RWMutex
	token string
	group singleflight.Group
}

// NewSession creates a session. token may be empty, in which case Login
// must succeed before fetches can authenticate.
func NewSession(authenticator TokenAuthenticator, creds credentials.CredentialsFetcher, token string, logger zerolog.Logger) *Session {
	return &Session{
		authenticator: authenticator,
		creds:         creds,
		logger:        logger,
		token:         token,
	}
}

// Token returns the current bearer token
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// HasToken reports whether a token has been supplied or obtained
func (s *Session) HasToken() bool {
	return s.Token() != ""
}

// Login authenticates unconditionally and stores the new token
func (s *Session) Login(ctx context.Context) (string, error) {
	return s.refresh(ctx, s.Token(), true)
}

// Reauthenticate replaces the token that was rejected. If another caller
// already replaced stale, the current token is returned without a login.
func (s *Session) Reauthenticate(ctx context.Context, stale string) (string, error) {
	return s.refresh(ctx, stale, false)
}

func (s *Session) refresh(ctx context.Context, stale string, force bool) (string, error) {
	if !force {
		if current := s.Token(); current != "" && current != stale {
			return current, nil
		}
	}

	v, err, shared := s.group.Do("login", func() (interface{}, error) {
		if !force {
			if current := s.Token(); current != "" && current != stale {
				return current, nil
			}
		}

		creds, err := s.creds.GetCredentials()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}

		token, err := s.authenticator.Authenticate(ctx, creds)
		if err != nil {
			s.logger.Error().Err(err).Msg("❌ Re-authentication failed")
			return nil, err
		}

		s.mu.Lock()
		s.token = token
		s.mu.Unlock()

		event := s.logger.Info().Str("account", creds.UniqueID())
		if exp, ok := ExpiresAt(token); ok {
			event = event.Time("token_expires_at", exp)
		}
		event.Msg("✅ Obtained new Paprika token")

		return token, nil
	})
	if err != nil {
		return "", err
	}

	if shared {
		s.logger.Debug().Msg("Joined in-flight re-authentication")
	}

	return v.(string), nil
}
