package config

import (
	"github.com/pkg/errors"
)

// MinSigningKeyLength is the minimum number of bytes accepted for the HMAC signing key.
const MinSigningKeyLength = 32

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	IsDevelopment() bool
	GetBaseURL() string
	GetDatabaseDSN() string
	GetTrustProxyHeaders() bool
	GetSmtpHost() string
	GetSmtpPort() string
	GetSmtpPassword() string
	GetSmtpAccount() string
	GetSmtpFrom() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Tokens
	Security
}

func New() Config {
	return mainConfig{}
}

// Validate checks the settings the process cannot start without.
func Validate(c Config) error {
	if len(c.GetSigningKey()) < MinSigningKeyLength {
		return errors.Errorf("[config.Validate] SIGNING_KEY must be at least %d bytes, got %d", MinSigningKeyLength, len(c.GetSigningKey()))
	}
	if c.GetAccessTokenExpiry() <= 0 {
		return errors.New("[config.Validate] ACCESS_TOKEN_MINUTES must be positive")
	}
	if c.GetRememberMeExpiry() <= 0 {
		return errors.New("[config.Validate] REMEMBER_ME_DAYS must be positive")
	}
	return nil
}
