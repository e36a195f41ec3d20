package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrAuth marks missing or rejected credentials. Never retried.
	ErrAuth = errors.New("authentication failed")
	// ErrBadRequest marks a request the upstream will never accept. Never retried.
	ErrBadRequest = errors.New("malformed request")
	// ErrUnsupportedPlatform is returned when no client exists for a platform.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrInvalidRateLimit is returned for a non-positive request budget.
	ErrInvalidRateLimit = errors.New("rate limit must be positive")
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Platform   Platform
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Platform, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Platform, e.StatusCode)
}

// Unwrap maps permanent statuses onto the sentinel errors.
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return ErrBadRequest
	}
	return nil
}

// Temporary reports whether the request may succeed if repeated.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// checkStatus turns a non-2xx response into an *HTTPError with a short body
// excerpt.
func checkStatus(p Platform, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HTTPError{Platform: p, StatusCode: resp.StatusCode, Body: string(body)}
}

// IsPermanent reports whether err should be surfaced instead of retried or
// swallowed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrUnsupportedPlatform)
}

// isRetryable classifies errors for the retry loop.
func isRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	// Network and decode errors.
	return true
}
