package appsec

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tmarces/appsec/lockout"
	"github.com/tmarces/appsec/token"
)

// LoginRequest carries one logon attempt.
type LoginRequest struct {
	AppID    string
	Username string
	Password string
	DeviceID string
}

// AuthResponse is the structured outcome of a login or refresh. The
// Status field is the authoritative result; errors are reserved for
// infrastructure failures.
type AuthResponse struct {
	Status            AuthStatus
	AccountLocked     bool
	Claims            Claims
	RefreshToken      string
	RefreshExpiration time.Time
	AccessToken       string
	Message           string
}

// Authenticator is one credential-verification strategy. Both strategies
// share the lockout registry, the refresh-token protocol, and the cookie
// handling; they differ only in how a password is verified.
type Authenticator interface {
	// Login verifies credentials and, on success, issues a refresh token
	// and writes its cookie through the sink.
	Login(ctx context.Context, req LoginRequest, sink CookieSink) (AuthResponse, error)

	// Refresh exchanges a presented refresh token for a renewed session.
	// The claims identify the account; they come from the caller's
	// previously issued (possibly expired) access token.
	Refresh(ctx context.Context, claims Claims, refreshToken string, sink CookieSink) (AuthResponse, error)

	// Logoff drops the account's session state and deletes the cookie.
	// Logging off an account with no session is a no-op.
	Logoff(ctx context.Context, appID, username string, sink CookieSink)

	// RecoverPassword starts the password recovery flow for the account.
	// Strategies without a recovery flow return ErrRecoveryNotSupported.
	RecoverPassword(ctx context.Context, appID, username string) error
}

// core holds the state and protocol shared by both authenticator
// strategies.
type core struct {
	cfg      Config
	accounts *lockout.Registry
	tokens   *token.Manager
	metrics  *Metrics
}

// issueSession mints a fresh refresh token for the account, stores it on
// the (caller-locked) record, writes the cookie, and signs an access
// token when a token manager is configured. Also clears any lockout
// state, since issuance only happens after successful verification.
func (c *core) issueSession(claims Claims, rec *lockout.Record, sink CookieSink) (AuthResponse, error) {
	rec.ClearLockout()

	refresh := uuid.NewString()
	expires := time.Now().Add(c.cfg.refreshLifetime())
	rec.SetRefreshToken(refresh)
	rec.SetRefreshExpiration(expires)

	sink.SetRefreshCookie(c.cfg.RefreshCookieName, refresh, c.cfg.cookiePath(claims.AppID), time.Now().Add(c.cfg.cookieLifetime()))

	resp := AuthResponse{
		Status:            StatusLoggedInOK,
		Claims:            claims,
		RefreshToken:      refresh,
		RefreshExpiration: expires,
	}
	if c.tokens != nil {
		access, err := c.tokens.Issue(token.AccessClaims{
			UserID:   claims.UserID,
			AppID:    claims.AppID,
			Username: claims.Username,
			UserType: claims.UserType,
			DeviceID: claims.DeviceID,
			Groups:   claims.Groups,
		})
		if err != nil {
			return AuthResponse{Status: StatusUnknown, Message: "access token signing failed"}, err
		}
		resp.AccessToken = access
	}
	c.metrics.Inc(MetricLoginSuccess)
	return resp, nil
}

// recordFailure marks one failed verification on the (caller-locked)
// record and reports the resulting lockout state.
func (c *core) recordFailure(rec *lockout.Record) bool {
	wasLocked := rec.IsLocked()
	locked := rec.RecordFailure()
	c.metrics.Inc(MetricLoginFailure)
	if locked && !wasLocked {
		c.metrics.Inc(MetricAccountLockout)
	}
	return locked
}

// refresh implements the shared refresh-token exchange. Verification
// outcomes are ranked: identity mismatch, then expiration, then usage
// count. Any failed exchange voids the stored token so a stolen cookie
// cannot be retried.
func (c *core) refresh(claims Claims, refreshToken string, sink CookieSink) (AuthResponse, error) {
	if refreshToken == "" || claims.Username == "" {
		c.metrics.Inc(MetricRefreshFailure)
		return AuthResponse{Status: StatusInvalidRefreshToken}, nil
	}

	rec, ok := c.accounts.Get(claims.AppID, claims.Username)
	if !ok {
		// No session state for the account; the caller must treat this
		// as a failed refresh.
		c.metrics.Inc(MetricRefreshFailure)
		return AuthResponse{Status: StatusUnknown}, nil
	}

	rec.Lock()
	defer rec.Unlock()

	if rec.IsLocked() {
		c.metrics.Inc(MetricRefreshFailure)
		return AuthResponse{Status: StatusAccountLocked, AccountLocked: true}, nil
	}

	switch rec.ValidateRefreshToken(refreshToken, c.cfg.MaxRefreshCount) {
	case lockout.TokenInvalid:
		rec.ClearRefreshToken()
		sink.DeleteRefreshCookie(c.cfg.RefreshCookieName, c.cfg.cookiePath(claims.AppID))
		c.metrics.Inc(MetricRefreshFailure)
		return AuthResponse{Status: StatusInvalidRefreshToken}, nil
	case lockout.TokenExpired:
		rec.ClearRefreshToken()
		sink.DeleteRefreshCookie(c.cfg.RefreshCookieName, c.cfg.cookiePath(claims.AppID))
		c.metrics.Inc(MetricRefreshFailure)
		return AuthResponse{Status: StatusRefreshTokenExpired}, nil
	case lockout.TokenMaxUses:
		rec.ClearRefreshToken()
		sink.DeleteRefreshCookie(c.cfg.RefreshCookieName, c.cfg.cookiePath(claims.AppID))
		c.metrics.Inc(MetricRefreshFailure)
		return AuthResponse{Status: StatusMaxRefreshReached}, nil
	}

	rec.BumpRefreshCount()
	expires := time.Now().Add(c.cfg.refreshLifetime())
	rec.SetRefreshExpiration(expires)
	sink.SetRefreshCookie(c.cfg.RefreshCookieName, refreshToken, c.cfg.cookiePath(claims.AppID), time.Now().Add(c.cfg.cookieLifetime()))

	resp := AuthResponse{
		Status:            StatusRefreshTokenValid,
		Claims:            claims,
		RefreshToken:      refreshToken,
		RefreshExpiration: expires,
	}
	if c.tokens != nil {
		access, err := c.tokens.Issue(token.AccessClaims{
			UserID:   claims.UserID,
			AppID:    claims.AppID,
			Username: claims.Username,
			UserType: claims.UserType,
			DeviceID: claims.DeviceID,
			Groups:   claims.Groups,
		})
		if err != nil {
			return AuthResponse{Status: StatusUnknown, Message: "access token signing failed"}, err
		}
		resp.AccessToken = access
	}
	c.metrics.Inc(MetricRefreshSuccess)
	return resp, nil
}

// logoff removes the account's session record and deletes the cookie.
func (c *core) logoff(appID, username string, sink CookieSink) {
	c.accounts.Remove(appID, username)
	sink.DeleteRefreshCookie(c.cfg.RefreshCookieName, c.cfg.cookiePath(appID))
}
