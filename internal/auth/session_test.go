package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvcrn/turmeric/internal/credentials"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	calls  int32
	delay  time.Duration
	tokens []string
	err    error
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, creds credentials.Credentials) (string, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.tokens[int(n)-1], nil
}

func staticCreds() credentials.CredentialsFetcher {
	return credentials.NewStaticCredentialsFetcher("cook@example.com", "secret")
}

func TestSessionLogin(t *testing.T) {
	fa := &fakeAuthenticator{tokens: []string{"tok-1"}}
	s := NewSession(fa, staticCreds(), "", zerolog.Nop())
	assert.False(t, s.HasToken())

	token, err := s.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "tok-1", s.Token())
}

func TestSessionReauthenticateReplacesStaleToken(t *testing.T) {
	fa := &fakeAuthenticator{tokens: []string{"tok-2"}}
	s := NewSession(fa, staticCreds(), "tok-1", zerolog.Nop())

	token, err := s.Reauthenticate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fa.calls))
}

func TestSessionReauthenticateSkipsAlreadyReplacedToken(t *testing.T) {
	fa := &fakeAuthenticator{tokens: []string{"unused"}}
	s := NewSession(fa, staticCreds(), "tok-2", zerolog.Nop())

	token, err := s.Reauthenticate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fa.calls))
}

func TestSessionCoalescesConcurrentReauthentication(t *testing.T) {
	fa := &fakeAuthenticator{tokens: []string{"tok-2", "tok-3"}, delay: 50 * time.Millisecond}
	s := NewSession(fa, staticCreds(), "tok-1", zerolog.Nop())

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := s.Reauthenticate(context.Background(), "tok-1")
			assert.NoError(t, err)
			results[i] = token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fa.calls))
	assert.Equal(t, []string{"tok-2", "tok-2"}, results)
}

func TestSessionReauthenticateFailureKeepsToken(t *testing.T) {
	fa := &fakeAuthenticator{err: ErrAuthenticationFailed}
	s := NewSession(fa, staticCreds(), "tok-1", zerolog.Nop())

	_, err := s.Reauthenticate(context.Background(), "tok-1")
	assert.True(t, errors.Is(err, ErrAuthenticationFailed))
	assert.Equal(t, "tok-1", s.Token())
}

func TestSessionMissingCredentials(t *testing.T) {
	fa := &fakeAuthenticator{tokens: []string{"never"}}
	s := NewSession(fa, credentials.NewStaticCredentialsFetcher("", ""), "", zerolog.Nop())

	_, err := s.Login(context.Background())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.ErrorIs(t, err, credentials.ErrMissingCredentials)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fa.calls))
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("not-verified"))
	require.NoError(t, err)

	got, ok := ExpiresAt(signed)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = ExpiresAt("opaque-token")
	assert.False(t, ok)

	_, ok = ExpiresAt("")
	assert.False(t, ok)
}
