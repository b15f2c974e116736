package provider

import (
	"errors"
	"fmt"
)

// Failure kinds for the exchange and identity calls.
var (
	ErrNetwork      = errors.New("provider unreachable")
	ErrInvalidGrant = errors.New("authorization code rejected")
	ErrProtocol     = errors.New("unexpected provider response")
	ErrUnauthorized = errors.New("provider rejected access token")
)

// errServerError marks a 5xx answer. It is reported as ErrProtocol but may be retried.
var errServerError = errors.New("provider server error")

// Kind returns a stable label for a provider error, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidGrant):
		return "invalid_grant"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "unknown"
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, errServerError)
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
