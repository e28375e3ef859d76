package config

import "time"

type SecurityConfig interface {
	GetRequireEmailVerification() bool
	GetForceTwoFactorOnRegistration() bool
	GetMaxFailedAccessAttempts() int
	GetLockoutDuration() time.Duration
	GetAdminNotificationEmails() []string
	GetAdminEmail() string
	GetAdminPassword() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetRequireEmailVerification() bool {
	return GetEnvBool("REQUIRE_EMAIL_VERIFICATION", false)
}

func (Security) GetForceTwoFactorOnRegistration() bool {
	return GetEnvBool("FORCE_TWO_FACTOR", false)
}

func (Security) GetMaxFailedAccessAttempts() int {
	return GetEnvInt("MAX_FAILED_ACCESS_ATTEMPTS", 5)
}

func (Security) GetLockoutDuration() time.Duration {
	return time.Duration(GetEnvInt("LOCKOUT_MINUTES", 15)) * time.Minute
}

// GetAdminNotificationEmails lists the addresses told about new registrations.
func (Security) GetAdminNotificationEmails() []string {
	return GetEnvList("ADMIN_EMAILS")
}

func (Security) GetAdminEmail() string {
	return GetEnv("ADMIN_EMAIL", "")
}

func (Security) GetAdminPassword() string {
	return GetEnv("ADMIN_PASSWORD", "")
}
