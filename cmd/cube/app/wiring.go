package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/cube-auth/authflow"
	"github.com/jrsteele09/cube-auth/internal/config"
	"github.com/jrsteele09/cube-auth/internal/logging"
	"github.com/jrsteele09/cube-auth/token"
	"github.com/jrsteele09/cube-auth/token/keys"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisPingTimeout = 3 * time.Second

// loadConfig reads dotenv files, validates the configuration for role and
// configures logging.
func loadConfig(opts *rootOptions, role string) (config.Config, zerolog.Logger, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return nil, zerolog.Logger{}, err
	}

	cfg := config.New()
	logger := logging.Setup(cfg.GetEnv(), cfg.GetLogLevel(), role)
	if err := config.Validate(cfg, role); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func listenAddr(opts *rootOptions, cfg config.Config) string {
	if opts.addr != "" {
		return opts.addr
	}
	return cfg.GetPort()
}

// newCodec builds the process-wide codec. The key material is read once here.
func newCodec(cfg config.SecurityConfig) (*token.Codec, error) {
	signer, err := keys.NewSignerFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return token.NewCodec(signer,
		token.WithIssuer(cfg.GetIssuer()),
		token.WithDefaultTTL(cfg.GetCredentialTTL()),
		token.WithLeeway(cfg.GetClockLeeway()),
	)
}

// newStateRepo returns the configured login-state store and a close function.
func newStateRepo(ctx context.Context, cfg config.StoreConfig) (authflow.Repo, func() error, error) {
	switch cfg.GetStateStore() {
	case config.StateStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.GetRedisAddr(), err)
		}
		return authflow.NewRedisRepo(client), client.Close, nil
	case config.StateStoreMemory:
		return authflow.NewInMemoryRepo(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported state store %q", cfg.GetStateStore())
	}
}
