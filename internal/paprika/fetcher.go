package paprika

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// BaseURL is the Paprika sync API root
	BaseURL = "https://www.paprikaapp.com/api/v2/sync"
	// RequestTimeout bounds every GET attempt
	RequestTimeout = 10 * time.Second

	// Groceries is the grocery list resource
	Groceries = "groceries"
	// Meals is the meal plan resource
	Meals = "meals"
)

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenProvider hands out the shared bearer token and replaces it after a 401.
type TokenProvider interface {
	Token() string
	Reauthenticate(ctx context.Context, stale string) (string, error)
}

// Fetcher performs authenticated GETs against the sync API, one resource at a time.
type Fetcher struct {
	client  HTTPClient
	tokens  TokenProvider
	baseURL string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewFetcher creates a fetcher. An empty baseURL means BaseURL.
func NewFetcher(client HTTPClient, tokens TokenProvider, baseURL string, logger zerolog.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &Fetcher{
		client:  client,
		tokens:  tokens,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: RequestTimeout,
		logger:  logger,
	}
}

type response struct {
	statusCode int
	header     http.Header
	body       []byte
}

// Fetch returns the JSON payload of resource. On 401 it re-authenticates once
// and retries once; every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, resource string) (json.RawMessage, error) {
	token := f.tokens.Token()

	resp, err := f.get(ctx, resource, token)
	if err != nil {
		return nil, &FetchError{Resource: resource, Kind: ErrFetchFailed, Err: err}
	}

	if resp.statusCode != http.StatusUnauthorized {
		return f.decode(resource, resp)
	}

	f.logger.Debug().Str("resource", resource).Msg("Token expired, re-authenticating")

	newToken, err := f.tokens.Reauthenticate(ctx, token)
	if err != nil {
		return nil, &FetchError{Resource: resource, Kind: ErrReauthFailed, StatusCode: http.StatusUnauthorized, Err: err}
	}

	resp, err = f.get(ctx, resource, newToken)
	if err != nil {
		return nil, &FetchError{Resource: resource, Kind: ErrFetchFailed, Err: fmt.Errorf("retry request failed: %w", err)}
	}

	if resp.statusCode == http.StatusUnauthorized {
		f.logger.Error().Str("resource", resource).Msg("Still received 401 after re-authentication, giving up")
		return nil, &FetchError{Resource: resource, Kind: ErrReauthFailed, StatusCode: http.StatusUnauthorized, Err: errors.New("new token rejected")}
	}

	f.logger.Info().Str("resource", resource).Msg("Request succeeded after re-authentication")
	return f.decode(resource, resp)
}

func (f *Fetcher) decode(resource string, resp *response) (json.RawMessage, error) {
	switch {
	case resp.statusCode == http.StatusOK:
		if !json.Valid(resp.body) {
			return nil, &FetchError{Resource: resource, Kind: ErrFetchFailed, StatusCode: resp.statusCode, Err: errors.New("response body is not valid JSON")}
		}
		return json.RawMessage(resp.body), nil

	case resp.statusCode == http.StatusTooManyRequests:
		retryAfter := resp.header.Get("Retry-After")
		logged := retryAfter
		if logged == "" {
			logged = "unknown"
		}
		f.logger.Warn().
			Str("resource", resource).
			Str("retry_after", logged).
			Msg("Paprika rate-limited request")
		return nil, &FetchError{Resource: resource, Kind: ErrRateLimited, StatusCode: resp.statusCode, RetryAfter: retryAfter}

	default:
		return nil, &FetchError{Resource: resource, Kind: ErrFetchFailed, StatusCode: resp.statusCode, Err: fmt.Errorf("unexpected status: %s", previewBody(resp.body))}
	}
}

func (f *Fetcher) get(ctx context.Context, resource, token string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	url := f.baseURL + "/" + resource
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Normalize token to avoid double "Bearer "
	bareToken := strings.TrimSpace(token)
	if len(bareToken) >= 7 && strings.EqualFold(bareToken[:7], "Bearer ") {
		bareToken = strings.TrimSpace(bareToken[7:])
	}
	req.Header.Set("Authorization", "Bearer "+bareToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	f.logger.Debug().
		Str("resource", resource).
		Int("status_code", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Paprika request finished")

	return &response{statusCode: resp.StatusCode, header: resp.Header, body: body}, nil
}

func previewBody(body []byte) string {
	preview := strings.TrimSpace(string(body))
	if len(preview) > 200 {
		return preview[:200] + "…(truncated)"
	}
	if preview == "" {
		return "<empty body>"
	}
	return preview
}
