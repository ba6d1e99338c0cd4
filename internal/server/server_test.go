package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvcrn/turmeric/internal/coordinator"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fetchedAt = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeService struct {
	mu         sync.Mutex
	snapshot   *coordinator.Snapshot
	status     coordinator.Status
	refreshErr error
	refreshes  int32
	forced     int32
	updates    chan coordinator.Update
}

func newFakeService() *fakeService {
	return &fakeService{
		snapshot: &coordinator.Snapshot{Entries: map[string]coordinator.Entry{
			"groceries": {Resource: "groceries", Payload: json.RawMessage(`{"result":[{"name":"milk"}]}`), FetchedAt: fetchedAt},
		}, UpdatedAt: fetchedAt},
		status:  coordinator.Status{LastTick: fetchedAt},
		updates: make(chan coordinator.Update, 4),
	}
}

func (f *fakeService) Snapshot() *coordinator.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeService) Status() coordinator.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeService) Refresh(ctx context.Context) (*coordinator.Snapshot, error) {
	atomic.AddInt32(&f.refreshes, 1)
	return f.Snapshot(), nil
}

func (f *fakeService) ForceRefresh(ctx context.Context) (*coordinator.Snapshot, error) {
	atomic.AddInt32(&f.forced, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.refreshErr
}

func (f *fakeService) Subscribe() (<-chan coordinator.Update, func()) {
	var once sync.Once
	return f.updates, func() { once.Do(func() { close(f.updates) }) }
}

func newTestServer(t *testing.T, svc Service, opts ...Option) *httptest.Server {
	t.Helper()
	s := New(zerolog.Nop(), svc, opts...)
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv
}

func TestHealth(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	svc.mu.Lock()
	svc.status.LastError = "meals: rate limited (status 429)"
	svc.mu.Unlock()

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "rate limited")
}

func TestHealthBeforeFirstTick(t *testing.T) {
	svc := newFakeService()
	svc.status = coordinator.Status{}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSnapshotEndpoints(t *testing.T) {
	srv := newTestServer(t, newFakeService())

	resp, err := http.Get(srv.URL + "/v1/snapshot")
	require.NoError(t, err)
	var snap coordinator.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.Contains(t, snap.Entries, "groceries")

	resp, err = http.Get(srv.URL + "/v1/snapshot/groceries")
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, payload, "result")
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))

	resp, err = http.Get(srv.URL + "/v1/snapshot/meals")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	svc := newFakeService()
	svc.status.Account = "cook@example.com"
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st coordinator.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "cook@example.com", st.Account)
	assert.True(t, fetchedAt.Equal(st.LastTick))
}

func TestRefreshOnRead(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(t, svc, WithRefreshOnRead())

	resp, err := http.Get(srv.URL + "/v1/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&svc.refreshes))

	plain := newFakeService()
	srv2 := newTestServer(t, plain)
	resp, err = http.Get(srv2.URL + "/v1/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Zero(t, atomic.LoadInt32(&plain.refreshes))
}

func TestAdminRefresh(t *testing.T) {
	t.Setenv(AdminKeyEnv, "s3cret")
	svc := newFakeService()
	srv := newTestServer(t, svc)

	post := func(header, value string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/refresh", nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set(header, value)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, post("", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post("Authorization", "Bearer wrong").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post("Authorization", "s3cret").StatusCode)
	assert.Zero(t, atomic.LoadInt32(&svc.forced))

	assert.Equal(t, http.StatusOK, post("Authorization", "Bearer s3cret").StatusCode)
	assert.Equal(t, http.StatusOK, post("X-API-Key", "s3cret").StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&svc.forced))

	svc.mu.Lock()
	svc.refreshErr = errors.New("meals: rate limited")
	svc.mu.Unlock()
	assert.Equal(t, http.StatusBadGateway, post("X-API-Key", "s3cret").StatusCode)

	// Only POST is routed; GET falls through to the catch-all.
	resp, err := http.Get(srv.URL + "/admin/refresh")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&svc.forced))
}

func TestAdminWithoutConfiguredKey(t *testing.T) {
	t.Setenv(AdminKeyEnv, "")
	srv := newTestServer(t, newFakeService())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/refresh", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "anything")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestWebsocketPushesChanges(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(t, svc)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello wsMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, wsTypeHello, hello.Type)
	assert.Equal(t, 1, hello.Resources["groceries"].Items)

	// Unchanged ticks are not pushed.
	svc.updates <- coordinator.Update{Snapshot: svc.Snapshot()}
	svc.updates <- coordinator.Update{Snapshot: svc.Snapshot(), Changed: []string{"groceries"}}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update wsMessage
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, wsTypeUpdate, update.Type)
	assert.Equal(t, []string{"groceries"}, update.Changed)
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, newFakeService())
	resp, err := http.Get(srv.URL + "/v1/chat/completions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
