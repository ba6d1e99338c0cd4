package paprika

import (
	"errors"
	"fmt"
)

var (
	// ErrReauthFailed means the API answered 401 and a fresh token could not
	// be obtained, or the retried request was rejected again.
	ErrReauthFailed = errors.New("token expired and re-authentication failed")
	// ErrRateLimited means the API answered 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrFetchFailed covers transport errors, timeouts, unexpected statuses
	// and unreadable bodies.
	ErrFetchFailed = errors.New("fetch failed")
)

// FetchError is the only error type Fetch returns. Kind is one of the
// package sentinels and matches with errors.Is.
type FetchError struct {
	Resource   string
	Kind       error
	StatusCode int
	// RetryAfter is the raw Retry-After header of a 429, informational only.
	RetryAfter string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Resource, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.RetryAfter != "" {
		msg += fmt.Sprintf(" retry after %s", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
