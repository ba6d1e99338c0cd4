package auth

import (
	"net/http"
	"time"
)

const (
	// LoginURLV2 is the current Paprika login endpoint
	LoginURLV2 = "https://www.paprikaapp.com/api/v2/account/login/"
	// LoginURLV1 is the legacy login endpoint, tried when v2 does not yield a token
	LoginURLV1 = "https://www.paprikaapp.com/api/v1/account/login/"
	// LoginTimeout bounds each login attempt
	LoginTimeout = 10 * time.Second

	// tokenPath is the gjson path of the bearer token in a login response
	tokenPath = "result.token"
)

// DefaultLoginURLs lists the login endpoints in priority order.
func DefaultLoginURLs() []string {
	return []string{LoginURLV2, LoginURLV1}
}

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
