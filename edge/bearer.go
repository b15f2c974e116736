package edge

import (
	"errors"
	"strings"
)

const bearerPrefix = "Bearer "

var (
	ErrMissingAuthorization = errors.New("missing Authorization header")
	ErrInvalidScheme        = errors.New("Authorization header is not a bearer credential")
)

// BearerToken extracts the credential from an Authorization header value of
// the exact form "Bearer <token>". The scheme is case-sensitive and separated
// by a single space; the token may not contain whitespace.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthorization
	}
	raw, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return "", ErrInvalidScheme
	}
	return raw, nil
}
