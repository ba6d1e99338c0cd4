//go:build js && wasm

package server

import (
	"net/http"

	"github.com/rs/zerolog"
)

// NewHTTPClient returns the default client, which Workers back with fetch
func NewHTTPClient(zerolog.Logger) HTTPClient {
	return http.DefaultClient
}
