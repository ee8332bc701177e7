package config

import (
	"os"
	"strings"
)

// AllowStaleRateFallback lets conversions fall back to the last cached spot
// rate when the live price source is down. The batch records the rate as
// stale either way.
//
// Set via env:
// - ALLOW_STALE_RATE=true
func AllowStaleRateFallback() bool {
	return envTruthy("ALLOW_STALE_RATE")
}

// SkipStartupMigrations disables AutoMigrate on boot so DDL can be run as a
// separate job instead of blocking a deploy.
//
// Set via env:
// - SKIP_MIGRATIONS=true
func SkipStartupMigrations() bool {
	return envTruthy("SKIP_MIGRATIONS")
}

// UserGuardEnabled installs the GORM plugin that scopes ledger queries to the
// request's user_id automatically.
//
// Set via env:
// - USER_GUARD_ENABLED=true
func UserGuardEnabled() bool {
	return envTruthy("USER_GUARD_ENABLED")
}

func envTruthy(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
