// Package apierr classifies failures of the remote collaborators (LLM and
// speech engines) into shared sentinels so callers can decide on retries
// with errors.Is.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
)

var (
	// ErrRateLimit indicates the remote rate limit was hit (retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrTimeout indicates a request timed out (retryable).
	ErrTimeout = errors.New("request timeout")

	// ErrServer indicates a 5xx response (retryable).
	ErrServer = errors.New("server error")

	// ErrAuthFailed indicates rejected credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates any other 4xx response.
	ErrBadRequest = errors.New("bad request")
)

// FromStatus wraps msg in the sentinel matching an HTTP status code.
// 2xx and 3xx codes return nil.
func FromStatus(code int, msg string) error {
	var sentinel error
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests:
		sentinel = ErrRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		sentinel = ErrAuthFailed
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		sentinel = ErrTimeout
	case code >= 500:
		sentinel = ErrServer
	default:
		sentinel = ErrBadRequest
	}
	return fmt.Errorf("status %d: %s: %w", code, msg, sentinel)
}

// FromTransport classifies an error returned by an HTTP round trip.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, ErrTimeout)
	}
	return err
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServer)
}
