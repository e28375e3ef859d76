package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	baseURLVar     = "BASE_URL"
	databaseDSNVar = "DATABASE_DSN"

	EnvDevelopment = "DEV"
	EnvProduction  = "PROD"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Identity Server")
}

func (EnvVars) GetEnv() string {
	return strings.ToUpper(GetEnv("ENV", EnvDevelopment))
}

// IsDevelopment reports whether the process runs with ENV=DEV.
func (e EnvVars) IsDevelopment() bool {
	return e.GetEnv() == EnvDevelopment
}

// GetBaseURL returns the public base URL (e.g., "https://id.example.com").
// Links sent by email and the default token issuer are built from it.
func (EnvVars) GetBaseURL() string {
	return strings.TrimRight(GetEnv(baseURLVar, "http://localhost:8080"), "/")
}

// GetDatabaseDSN returns the Postgres connection string. Empty selects the in-memory stores.
func (EnvVars) GetDatabaseDSN() string {
	return GetEnv(databaseDSNVar, "")
}

// GetTrustProxyHeaders reports whether X-Forwarded-For may be used as the client
// address. Only enable it behind a proxy that overwrites the header.
func (EnvVars) GetTrustProxyHeaders() bool {
	return GetEnvBool("TRUST_PROXY_HEADERS", false)
}

func (EnvVars) GetSmtpPassword() string {
	return GetEnv("SMTP_PASSWORD", "")
}

func (EnvVars) GetSmtpAccount() string {
	return GetEnv("SMTP_ACCOUNT", "")
}

func (EnvVars) GetSmtpHost() string {
	return GetEnv("SMTP_HOST", "")
}

func (EnvVars) GetSmtpPort() string {
	return GetEnv("SMTP_PORT", "587")
}

func (e EnvVars) GetSmtpFrom() string {
	return GetEnv("SMTP_FROM", e.GetSmtpAccount())
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt returns defaultValue when the variable is unset or not an integer.
func GetEnvInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(strings.TrimSpace(os.Getenv(envVar)))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetEnvBool(envVar string, defaultValue bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(envVar)))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvList splits a comma separated variable, dropping empty entries.
func GetEnvList(envVar string) []string {
	var list []string
	for _, v := range strings.Split(os.Getenv(envVar), ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}
