package app

import (
	"github.com/dvcrn/turmeric/internal/server"
	"github.com/rs/zerolog"
)

// NewServer creates the HTTP surface for a
func NewServer(a *App, logger zerolog.Logger, opts ...server.Option) *server.Server {
	return server.New(logger, a, opts...)
}
