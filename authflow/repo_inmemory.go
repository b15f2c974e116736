package authflow

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const cleanupInterval = time.Minute

// InMemoryRepo keeps pending flows in a process-local cache. It is only
// suitable when a single auth service instance handles both legs of a login.
type InMemoryRepo struct {
	mu      sync.Mutex
	flows   *cache.Cache
	nowFunc func() time.Time
}

type InMemoryOption func(*InMemoryRepo)

func WithNowFunc(now func() time.Time) InMemoryOption {
	return func(r *InMemoryRepo) {
		r.nowFunc = now
	}
}

func NewInMemoryRepo(options ...InMemoryOption) *InMemoryRepo {
	r := &InMemoryRepo{
		flows:   cache.New(cache.NoExpiration, cleanupInterval),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *InMemoryRepo) Upsert(_ context.Context, state string, flow *AuthFlowState, ttl time.Duration) error {
	if err := validate(state, flow, ttl); err != nil {
		return err
	}

	stored := *flow
	stored.State = state
	stored.ExpiresAt = r.nowFunc().Add(ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows.Set(state, stored, ttl)
	return nil
}

func (r *InMemoryRepo) Consume(_ context.Context, state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, ErrEmptyState
	}

	r.mu.Lock()
	item, found := r.flows.Get(state)
	if found {
		r.flows.Delete(state)
	}
	r.mu.Unlock()

	if !found {
		return nil, ErrStateNotFound
	}
	flow, ok := item.(AuthFlowState)
	if !ok || !r.nowFunc().Before(flow.ExpiresAt) {
		return nil, ErrStateNotFound
	}
	return &flow, nil
}

// Len reports the number of flows held, including expired ones not yet evicted.
func (r *InMemoryRepo) Len() int {
	return r.flows.ItemCount()
}
