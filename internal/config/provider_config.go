package config

import (
	"strings"
	"time"
)

const (
	clientIDVar           = "WCA_CLIENT_ID"
	clientSecretVar       = "WCA_CLIENT_SECRET"
	providerTimeoutVar    = "PROVIDER_TIMEOUT"
	providerMaxRetriesVar = "PROVIDER_MAX_RETRIES"
)

// DefaultProviderTimeout bounds every outbound provider call.
const DefaultProviderTimeout = 10 * time.Second

// Default World Cube Association endpoints.
const (
	DefaultAuthorizeURL = "https://www.worldcubeassociation.org/oauth/authorize"
	DefaultTokenURL     = "https://www.worldcubeassociation.org/oauth/token"
	DefaultUserInfoURL  = "https://www.worldcubeassociation.org/api/v0/me"
)

type ProviderConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetAuthorizeURL() string
	GetTokenURL() string
	GetUserInfoURL() string
	GetScopes() []string
	GetProviderTimeout() time.Duration
	GetProviderMaxRetries() int
}

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

func (Provider) GetClientSecret() string {
	return GetEnv(clientSecretVar, "")
}

func (Provider) GetRedirectURI() string {
	return GetEnv("WCA_REDIRECT_URI", EnvVars{}.GetBaseURL()+"/callback")
}

func (Provider) GetAuthorizeURL() string {
	return GetEnv("WCA_AUTHORIZE_URL", DefaultAuthorizeURL)
}

func (Provider) GetTokenURL() string {
	return GetEnv("WCA_TOKEN_URL", DefaultTokenURL)
}

func (Provider) GetUserInfoURL() string {
	return GetEnv("WCA_USER_INFO_URL", DefaultUserInfoURL)
}

func (Provider) GetScopes() []string {
	return strings.Fields(GetEnv("WCA_SCOPES", "public email"))
}

func (Provider) GetProviderTimeout() time.Duration {
	return GetEnvDuration(providerTimeoutVar, DefaultProviderTimeout)
}

// GetProviderMaxRetries bounds the retries of the identity fetch. The code
// exchange is never retried.
func (Provider) GetProviderMaxRetries() int {
	return GetEnvInt(providerMaxRetriesVar, 2)
}
