package config

import "strings"

type ServicesConfig interface {
	GetProfileServiceURL() string
	GetAuthServiceURL() string
}

type Services struct{}

var _ ServicesConfig = Services{}

func (Services) GetProfileServiceURL() string {
	return strings.TrimRight(GetEnv("PROFILE_SERVICE_URL", "http://localhost:8082"), "/")
}

func (Services) GetAuthServiceURL() string {
	return strings.TrimRight(GetEnv("AUTH_SERVICE_URL", "http://localhost:8081"), "/")
}
