//go:build !js || !wasm

package server

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	client, ok := NewHTTPClient(logger).(*http.Client)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.NotSame(t, http.DefaultTransport, transport)
	assert.Equal(t, 4, transport.MaxIdleConnsPerHost)

	// HTTP/2 setup problems are debug noise only.
	assert.Empty(t, buf.String())
}
