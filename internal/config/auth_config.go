package config

import "strings"

type AuthConfig interface {
	GetClientID() string
	GetIssuerURL() string
	GetScopes() []string
	GetDeviceAuthURL() string
	GetTokenURL() string
	GetServiceAuthURL() string
}

type Auth struct{}

var _ AuthConfig = Auth{}

func (Auth) GetClientID() string {
	return GetEnv("CLIENT_ID", "")
}

// GetIssuerURL returns the OIDC issuer for endpoint discovery; when empty the
// explicit device-auth and token URLs are used instead.
func (Auth) GetIssuerURL() string {
	return GetEnv("ISSUER_URL", "")
}

func (Auth) GetScopes() []string {
	return strings.Fields(GetEnv("SCOPES", "openid offline_access"))
}

func (Auth) GetDeviceAuthURL() string {
	return GetEnv("DEVICE_AUTH_URL", "")
}

func (Auth) GetTokenURL() string {
	return GetEnv("TOKEN_URL", "")
}

// GetServiceAuthURL returns the endpoint exchanging a provider token for the
// gated-service token.
func (Auth) GetServiceAuthURL() string {
	return GetEnv("SERVICE_AUTH_URL", "")
}
