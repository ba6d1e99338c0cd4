//go:build !js || !wasm

package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

// NewHTTPClient creates the upstream client. HTTP/2 is negotiated over TLS
// with HTTP/1.1 as the fallback.
func NewHTTPClient(logger zerolog.Logger) HTTPClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	// ConfigureTransport only fails when the transport already has HTTP/2 set up
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Debug().Err(err).Msg("HTTP/2 not configured, using the transport as is")
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}
