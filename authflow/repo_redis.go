package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cube:authflow:"

// RedisRepo shares pending flows between auth service instances. Expiry is
// delegated to Redis and Consume relies on GETDEL for single use.
type RedisRepo struct {
	client redis.UniversalClient
}

func NewRedisRepo(client redis.UniversalClient) *RedisRepo {
	return &RedisRepo{client: client}
}

func (r *RedisRepo) Upsert(ctx context.Context, state string, flow *AuthFlowState, ttl time.Duration) error {
	if err := validate(state, flow, ttl); err != nil {
		return err
	}

	stored := *flow
	stored.State = state
	stored.ExpiresAt = stored.CreatedAt.Add(ttl)

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("[RedisRepo Upsert] marshal: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+state, payload, ttl).Err(); err != nil {
		return fmt.Errorf("[RedisRepo Upsert] set: %w", err)
	}
	return nil
}

func (r *RedisRepo) Consume(ctx context.Context, state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, ErrEmptyState
	}

	payload, err := r.client.GetDel(ctx, keyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[RedisRepo Consume] getdel: %w", err)
	}

	var flow AuthFlowState
	if err := json.Unmarshal(payload, &flow); err != nil {
		return nil, fmt.Errorf("[RedisRepo Consume] unmarshal: %w", err)
	}
	return &flow, nil
}
