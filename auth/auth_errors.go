package auth

import (
	"errors"
	"fmt"
)

// Stage names the step of HandleCallback that failed.
type Stage string

const (
	StageState    Stage = "state"
	StageExchange Stage = "exchange"
	StageIdentity Stage = "identity"
	StageProfile  Stage = "profile"
	StageIssue    Stage = "issue"
)

var (
	ErrInvalidState   = errors.New("invalid or expired login state")
	ErrMissingCode    = errors.New("missing authorization code")
	ErrEmptyIdentity  = errors.New("provider identity has no external id")
	ErrProfileFailure = errors.New("profile registration failed")
)

// AuthError reports which stage of a callback failed. It unwraps to the
// stage's underlying error so callers can match provider or state sentinels.
type AuthError struct {
	Stage Stage
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed at %s: %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage when err is, or wraps, an *AuthError.
func StageOf(err error) (Stage, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Stage, true
	}
	return "", false
}
