package config

import "time"

const (
	jwtAlgorithmVar      = "JWT_ALGORITHM"
	jwtSecretVar         = "JWT_SECRET"
	jwtPrivateKeyFileVar = "JWT_PRIVATE_KEY_FILE"
	jwtPublicKeyFileVar  = "JWT_PUBLIC_KEY_FILE"
	credentialTTLVar     = "CREDENTIAL_TTL"
	stateTTLVar          = "STATE_TTL"
	clockLeewayVar       = "CLOCK_LEEWAY"
)

const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
)

type SecurityConfig interface {
	GetSigningAlgorithm() string
	GetSigningSecret() string
	GetSigningPrivateKeyFile() string
	GetSigningPublicKeyFile() string
	GetIssuer() string
	GetCredentialTTL() time.Duration
	GetStateTTL() time.Duration
	GetClockLeeway() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetSigningAlgorithm() string {
	return GetEnv(jwtAlgorithmVar, AlgorithmHS256)
}

func (Security) GetSigningSecret() string {
	return GetEnv(jwtSecretVar, "")
}

func (Security) GetSigningPrivateKeyFile() string {
	return GetEnv(jwtPrivateKeyFileVar, "")
}

func (Security) GetSigningPublicKeyFile() string {
	return GetEnv(jwtPublicKeyFileVar, "")
}

func (Security) GetIssuer() string {
	return GetEnv("JWT_ISSUER", "cube-auth")
}

func (Security) GetCredentialTTL() time.Duration {
	return GetEnvDuration(credentialTTLVar, 24*time.Hour)
}

// GetStateTTL is how long a login attempt may sit at the provider before
// its callback is rejected.
func (Security) GetStateTTL() time.Duration {
	return GetEnvDuration(stateTTLVar, 10*time.Minute)
}

func (Security) GetClockLeeway() time.Duration {
	return GetEnvDuration(clockLeewayVar, 0)
}
