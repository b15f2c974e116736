package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. Verify wraps exactly one of these so callers can
// tell why a credential was rejected with errors.Is.
var (
	ErrMalformed    = errors.New("credential malformed")
	ErrBadSignature = errors.New("credential signature invalid")
	ErrExpired      = errors.New("credential expired")
)

// ErrEmptySubject is returned by Issue when there is no identity to embed.
var ErrEmptySubject = errors.New("credential subject is empty")

// Reason returns a stable label for a verification error, for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	default:
		return "unknown"
	}
}

// classify maps the jwt library's error chain onto the three kinds. The parser
// stops at the first failing step (decode, algorithm, signature, claims), which
// gives Malformed > BadSignature > Expired precedence.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %s", ErrBadSignature, err.Error())
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %s", ErrExpired, err.Error())
	default:
		return fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
}
