package paprika

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	mu       sync.Mutex
	token    string
	next     string
	err      error
	reauths  int32
	lastSeen string
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) Reauthenticate(ctx context.Context, stale string) (string, error) {
	atomic.AddInt32(&f.reauths, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen = stale
	if f.err != nil {
		return "", f.err
	}
	f.token = f.next
	return f.token, nil
}

func apiServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchReturnsPayload(t *testing.T) {
	srv, hits := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/groceries", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"result":[{"name":"milk"},{"name":"eggs"}]}`))
	})

	tokens := &fakeTokens{token: "tok-1"}
	f := NewFetcher(srv.Client(), tokens, srv.URL, zerolog.Nop())

	payload, err := f.Fetch(context.Background(), Groceries)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":[{"name":"milk"},{"name":"eggs"}]}`, string(payload))
	assert.Equal(t, 2, ItemCount(payload))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Zero(t, atomic.LoadInt32(&tokens.reauths))
}

func TestFetchStripsBearerPrefix(t *testing.T) {
	srv, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"result":[]}`))
	})

	f := NewFetcher(srv.Client(), &fakeTokens{token: "bearer tok-1"}, srv.URL, zerolog.Nop())
	_, err := f.Fetch(context.Background(), Meals)
	require.NoError(t, err)
}

func TestFetchReauthenticatesOnceOn401(t *testing.T) {
	srv, hits := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"result":[{"name":"tacos"}]}`))
	})

	tokens := &fakeTokens{token: "tok-1", next: "tok-2"}
	f := NewFetcher(srv.Client(), tokens, srv.URL, zerolog.Nop())

	payload, err := f.Fetch(context.Background(), Meals)
	require.NoError(t, err)
	assert.Equal(t, 1, ItemCount(payload))
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokens.reauths))
	assert.Equal(t, "tok-1", tokens.lastSeen)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestFetchGivesUpAfterSecond401(t *testing.T) {
	srv, hits := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	tokens := &fakeTokens{token: "tok-1", next: "tok-2"}
	f := NewFetcher(srv.Client(), tokens, srv.URL, zerolog.Nop())

	_, err := f.Fetch(context.Background(), Groceries)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReauthFailed)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, Groceries, fetchErr.Resource)
	assert.Equal(t, http.StatusUnauthorized, fetchErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokens.reauths))
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestFetchReauthErrorIsReauthFailed(t *testing.T) {
	srv, hits := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	loginErr := errors.New("bad password")
	tokens := &fakeTokens{token: "tok-1", err: loginErr}
	f := NewFetcher(srv.Client(), tokens, srv.URL, zerolog.Nop())

	_, err := f.Fetch(context.Background(), Groceries)
	assert.ErrorIs(t, err, ErrReauthFailed)
	assert.ErrorIs(t, err, loginErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestFetchRateLimited(t *testing.T) {
	srv, hits := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	tokens := &fakeTokens{token: "tok-1", next: "tok-2"}
	f := NewFetcher(srv.Client(), tokens, srv.URL, zerolog.Nop())

	_, err := f.Fetch(context.Background(), Meals)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, errors.Is(err, ErrFetchFailed))

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "120", fetchErr.RetryAfter)
	assert.Zero(t, atomic.LoadInt32(&tokens.reauths), "429 must not trigger a login")
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>maintenance</html>`))
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := apiServer(t, tt.handler)
			tokens := &fakeTokens{token: "tok-1"}
			f := NewFetcher(srv.Client(), tokens, srv.URL, zerolog.Nop())

			payload, err := f.Fetch(context.Background(), Groceries)
			assert.Nil(t, payload)
			assert.ErrorIs(t, err, ErrFetchFailed)
			assert.Zero(t, atomic.LoadInt32(&tokens.reauths))
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	f := NewFetcher(srv.Client(), &fakeTokens{token: "tok-1"}, srv.URL, zerolog.Nop())
	f.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := f.Fetch(context.Background(), Groceries)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestItemCount(t *testing.T) {
	assert.Equal(t, 3, ItemCount([]byte(`{"result":[1,2,3]}`)))
	assert.Equal(t, 0, ItemCount([]byte(`{"result":[]}`)))
	assert.Equal(t, -1, ItemCount([]byte(`{"result":{"a":1}}`)))
	assert.Equal(t, -1, ItemCount([]byte(`not json`)))
}
