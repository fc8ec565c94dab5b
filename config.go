package appsec

import (
	"log"
	"time"
)

const (
	defaultAdminUserType   = "ADMIN"
	defaultRefreshCookie   = "app_refresh"
	defaultRefreshHours    = 12
	defaultMaxRefreshCount = 100
)

// Config is the immutable configuration for the authenticators and the
// service facade. Zero values are normalized by withDefaults.
type Config struct {
	// APIBasePath is the API base segment, e.g. "api". Refresh cookies
	// are scoped to /{APIBasePath}/{appID}.
	APIBasePath string

	// AdminUserType is the user type that bypasses route authorization.
	AdminUserType string

	// RefreshCookieName names the refresh-token cookie.
	RefreshCookieName string

	// RefreshTokenHours is the refresh token lifetime in hours. The
	// cookie carrying it lives one hour longer.
	RefreshTokenHours int

	// MaxRefreshCount bounds how many times one refresh token may be
	// exchanged before rotation is forced through a full login.
	MaxRefreshCount int

	// Recovery configures the password recovery flow of the directory
	// authenticator.
	Recovery RecoveryConfig

	// Warn receives diagnostic messages. Defaults to log.Printf.
	Warn func(format string, args ...any)
}

// RecoveryConfig configures password recovery.
type RecoveryConfig struct {
	// TemplateID identifies the recovery email template in the user
	// directory.
	TemplateID string
	// CodeTTL is the recovery code lifetime. Defaults to 15 minutes.
	CodeTTL time.Duration
	// MaxAttempts caps code validation attempts before the code is
	// discarded. Defaults to 5.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.AdminUserType == "" {
		c.AdminUserType = defaultAdminUserType
	}
	if c.RefreshCookieName == "" {
		c.RefreshCookieName = defaultRefreshCookie
	}
	if c.RefreshTokenHours <= 0 {
		c.RefreshTokenHours = defaultRefreshHours
	}
	if c.MaxRefreshCount <= 0 {
		c.MaxRefreshCount = defaultMaxRefreshCount
	}
	if c.Recovery.CodeTTL <= 0 {
		c.Recovery.CodeTTL = 15 * time.Minute
	}
	if c.Recovery.MaxAttempts <= 0 {
		c.Recovery.MaxAttempts = 5
	}
	if c.Warn == nil {
		c.Warn = log.Printf
	}
	return c
}

// refreshLifetime is the refresh token validity window.
func (c Config) refreshLifetime() time.Duration {
	return time.Duration(c.RefreshTokenHours) * time.Hour
}

// cookieLifetime outlives the token by one hour so an expired-token
// refresh attempt still reaches the server for a clean rejection.
func (c Config) cookieLifetime() time.Duration {
	return time.Duration(c.RefreshTokenHours+1) * time.Hour
}

// cookiePath scopes the refresh cookie to one application's API subtree.
func (c Config) cookiePath(appID string) string {
	return "/" + c.APIBasePath + "/" + appID
}
