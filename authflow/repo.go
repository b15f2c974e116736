package authflow

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyState    = errors.New("state cannot be empty")
	ErrStateNotFound = errors.New("state not found")
)

// AuthFlowState is what the auth service remembers about a login attempt
// between BeginLogin and the provider's callback.
type AuthFlowState struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Repo stores pending login attempts keyed by their state value.
//
// Consume is single-use: it returns the stored flow and removes it in one
// step, so a replayed callback finds nothing. Expired flows behave as absent.
type Repo interface {
	Upsert(ctx context.Context, state string, flow *AuthFlowState, ttl time.Duration) error
	Consume(ctx context.Context, state string) (*AuthFlowState, error)
}

func validate(state string, flow *AuthFlowState, ttl time.Duration) error {
	if state == "" {
		return ErrEmptyState
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	return nil
}
