// Package gateway holds the pieces shared by the provider adapters.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

const maxBodySize = 1 << 20

// NewHTTPClient returns the client used when a gateway is built without one.
// Per-call deadlines come from the caller's context.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// StatusError classifies a non-2xx provider response. Auth failures, throttling
// and server errors are transient, everything else is a permanent rejection.
func StatusError(op string, status int) error {
	switch {
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return fmt.Errorf("%w: %s returned %d", domain.ErrProviderUnavailable, op, status)
	default:
		return fmt.Errorf("%w: %s returned %d", domain.ErrProviderRejected, op, status)
	}
}

// TransportError wraps a failed round trip. Context cancellation is kept as is
// so callers can tell a caller abort from a provider outage.
func TransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, op, err)
}

// ReadBody reads at most 1MiB of a response body.
func ReadBody(res *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(res.Body, maxBodySize))
}
