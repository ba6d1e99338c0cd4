//go:build js && wasm

package server

import (
	"net/http"

	"github.com/rs/zerolog"
)

type hub struct{}

func newHub(svc Service, logger zerolog.Logger) *hub {
	return &hub{}
}

func (h *hub) close() {}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "websocket push is not supported on Workers"})
}
