package config

import "time"

type TokenConfig interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() string
	GetAccessTokenExpiry() time.Duration
	GetSessionRefreshExpiry() time.Duration
	GetRememberMeExpiry() time.Duration
	GetRefreshTokenLength() int
	GetRefreshCookieName() string
	GetTwoFactorCodeExpiry() time.Duration
	GetOneTimeCodeExpiry() time.Duration
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetSigningKey() string {
	return GetEnv("SIGNING_KEY", "")
}

func (Tokens) GetIssuer() string {
	return GetEnv("TOKEN_ISSUER", EnvVars{}.GetBaseURL())
}

func (Tokens) GetAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "api")
}

func (Tokens) GetAccessTokenExpiry() time.Duration {
	return time.Duration(GetEnvInt("ACCESS_TOKEN_MINUTES", 15)) * time.Minute
}

// GetSessionRefreshExpiry is the refresh lifetime for logins without remember-me.
// It is twice the access token lifetime so a browser tab can renew once while idle.
func (t Tokens) GetSessionRefreshExpiry() time.Duration {
	return 2 * t.GetAccessTokenExpiry()
}

func (Tokens) GetRememberMeExpiry() time.Duration {
	return time.Duration(GetEnvInt("REMEMBER_ME_DAYS", 30)) * 24 * time.Hour
}

func (Tokens) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (Tokens) GetRefreshCookieName() string {
	return GetEnv("REFRESH_COOKIE_NAME", "refresh_token")
}

func (Tokens) GetTwoFactorCodeExpiry() time.Duration {
	return 10 * time.Minute
}

func (Tokens) GetOneTimeCodeExpiry() time.Duration {
	return 24 * time.Hour
}
