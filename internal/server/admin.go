package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/dvcrn/turmeric/internal/env"
)

// AdminKeyEnv holds the key guarding /admin routes
const AdminKeyEnv = "ADMIN_API_KEY"

var (
	errMissingAdminKey = errors.New("missing Authorization or X-API-Key header")
	errMalformedBearer = errors.New("invalid Authorization header format")
)

// providedAdminKey reads 'Authorization: Bearer <key>', falling back to
// 'X-API-Key: <key>'.
func providedAdminKey(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, key, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(key) == "" {
			return "", errMalformedBearer
		}
		return strings.TrimSpace(key), nil
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, nil
	}
	return "", errMissingAdminKey
}

func (s *Server) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminKey, ok := env.Get(AdminKeyEnv)
		if !ok || adminKey == "" {
			s.logger.Error().Msg("ADMIN_API_KEY environment variable not set")
			http.Error(w, "Admin API not configured", http.StatusInternalServerError)
			return
		}

		provided, err := providedAdminKey(r)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("method", r.Method).
				Str("uri", r.RequestURI).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rejected admin request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
			s.logger.Warn().
				Str("method", r.Method).
				Str("uri", r.RequestURI).
				Str("remote_addr", r.RemoteAddr).
				Msg("Invalid admin API key provided")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Msg("Admin request authorized")

		next(w, r)
	}
}
