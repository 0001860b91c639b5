// Package errs defines the provider-error taxonomy shared by every retry site.
package errs

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrValidation marks a permanent validation failure (oversized file,
	// disallowed input). Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited marks a provider rate-limit rejection (HTTP 429).
	ErrRateLimited = errors.New("provider rate limited")

	// ErrAuth marks an authentication failure against a provider. Fatal.
	ErrAuth = errors.New("provider authentication failed")

	// ErrUnavailable marks a transient remote failure (timeout, 5xx,
	// connection reset).
	ErrUnavailable = errors.New("service unavailable")
)

// Retryable reports whether err is plausibly transient. Rate limits,
// unavailability and network timeouts are retryable; validation and auth
// failures are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrAuth) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
