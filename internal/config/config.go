package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	ProviderConfig
	SecurityConfig
	StoreConfig
	ServicesConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Provider
	Security
	Store
	Services
}

func New() Config {
	return mainConfig{}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Variables that are already set win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("[config LoadDotEnv] %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks the settings a service role cannot start without.
// Every role needs verification key material; the auth role also needs
// provider client credentials.
func Validate(c Config, role string) error {
	var problems []string

	switch c.GetSigningAlgorithm() {
	case AlgorithmHS256:
		if c.GetSigningSecret() == "" {
			problems = append(problems, jwtSecretVar+" is required for "+AlgorithmHS256)
		}
	case AlgorithmRS256:
		if c.GetSigningPublicKeyFile() == "" && c.GetSigningPrivateKeyFile() == "" {
			problems = append(problems, jwtPublicKeyFileVar+" or "+jwtPrivateKeyFileVar+" is required for "+AlgorithmRS256)
		}
		if role == RoleAuth && c.GetSigningPrivateKeyFile() == "" {
			problems = append(problems, jwtPrivateKeyFileVar+" is required to issue credentials")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported %s %q", jwtAlgorithmVar, c.GetSigningAlgorithm()))
	}

	if role == RoleAuth {
		if c.GetClientID() == "" {
			problems = append(problems, clientIDVar+" is required")
		}
		if c.GetClientSecret() == "" {
			problems = append(problems, clientSecretVar+" is required")
		}
	}

	problems = append(problems, unparsable(
		[]string{providerTimeoutVar, credentialTTLVar, stateTTLVar, clockLeewayVar},
		[]string{providerMaxRetriesVar},
	)...)
	if c.GetCredentialTTL() <= 0 {
		problems = append(problems, credentialTTLVar+" must be positive")
	}
	if c.GetStateTTL() <= 0 {
		problems = append(problems, stateTTLVar+" must be positive")
	}
	if c.GetClockLeeway() < 0 {
		problems = append(problems, clockLeewayVar+" must not be negative")
	}
	if role == RoleAuth {
		if c.GetProviderTimeout() <= 0 {
			problems = append(problems, providerTimeoutVar+" must be positive")
		}
		if c.GetProviderMaxRetries() < 0 {
			problems = append(problems, providerMaxRetriesVar+" must not be negative")
		}
	}

	if c.GetStateStore() != StateStoreMemory && c.GetStateStore() != StateStoreRedis {
		problems = append(problems, fmt.Sprintf("unsupported %s %q", stateStoreVar, c.GetStateStore()))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// unparsable lists the variables that are set but would silently fall back to
// their defaults in the getters.
func unparsable(durationVars, intVars []string) []string {
	var problems []string
	for _, v := range durationVars {
		if raw := os.Getenv(v); raw != "" {
			if _, err := time.ParseDuration(raw); err != nil {
				problems = append(problems, fmt.Sprintf("%s: invalid duration %q", v, raw))
			}
		}
	}
	for _, v := range intVars {
		if raw := os.Getenv(v); raw != "" {
			if _, err := strconv.Atoi(raw); err != nil {
				problems = append(problems, fmt.Sprintf("%s: invalid integer %q", v, raw))
			}
		}
	}
	return problems
}

// Service roles understood by Validate.
const (
	RoleAuth    = "auth"
	RoleProfile = "profile"
	RoleGateway = "gateway"
)
