package appsec

import (
	"context"

	"github.com/tmarces/appsec/lockout"
	"github.com/tmarces/appsec/token"
)

// CredentialAuthenticator verifies credentials through an external
// credential store (server-side login). Password checking is entirely
// the store's concern; this strategy interprets the structured result,
// maintains lockout state, and runs the shared refresh-token protocol.
//
// It has no password recovery flow.
type CredentialAuthenticator struct {
	core
	store CredentialStore
}

// NewCredentialAuthenticator builds the strategy. tokens and metrics may
// be nil; without a token manager no access tokens are issued.
func NewCredentialAuthenticator(cfg Config, accounts *lockout.Registry, store CredentialStore, tokens *token.Manager, metrics *Metrics) (*CredentialAuthenticator, error) {
	if accounts == nil || store == nil {
		return nil, ErrNotReady
	}
	return &CredentialAuthenticator{
		core:  core{cfg: cfg.withDefaults(), accounts: accounts, tokens: tokens, metrics: metrics},
		store: store,
	}, nil
}

// Login checks lockout state first, then delegates verification to the
// store. A store outage is treated like a failed verification: the
// account is charged a failure and the outcome is returned as data.
func (a *CredentialAuthenticator) Login(ctx context.Context, req LoginRequest, sink CookieSink) (AuthResponse, error) {
	rec := a.accounts.GetOrCreate(req.AppID, req.Username)
	rec.Lock()
	defer rec.Unlock()

	if rec.IsLocked() {
		a.metrics.Inc(MetricLoginFailure)
		return AuthResponse{Status: StatusAccountLocked, AccountLocked: true}, nil
	}

	res, err := a.store.VerifyCredentials(ctx, req.AppID, req.Username, req.Password, req.DeviceID)
	if err != nil {
		// A store outage fails closed and is indistinguishable from a bad
		// password to the caller.
		a.cfg.Warn("appsec: credential store unavailable for %s.%s: %v", req.AppID, req.Username, err)
		locked := a.recordFailure(rec)
		return AuthResponse{Status: StatusUnknown, AccountLocked: locked, Message: "credential store unavailable"}, nil
	}

	if res.Status != StatusLoggedInOK {
		locked := a.recordFailure(rec)
		return AuthResponse{Status: res.Status, AccountLocked: locked}, nil
	}

	return a.issueSession(Claims{
		UserID:   res.UserID,
		AppID:    req.AppID,
		Username: req.Username,
		UserType: res.UserType,
		DeviceID: req.DeviceID,
		Groups:   res.Groups,
	}, rec, sink)
}

// Refresh runs the shared refresh-token exchange.
func (a *CredentialAuthenticator) Refresh(ctx context.Context, claims Claims, refreshToken string, sink CookieSink) (AuthResponse, error) {
	return a.refresh(claims, refreshToken, sink)
}

// Logoff drops the session. Safe to call with no session present.
func (a *CredentialAuthenticator) Logoff(ctx context.Context, appID, username string, sink CookieSink) {
	a.logoff(appID, username, sink)
}

// RecoverPassword is not supported by this strategy.
func (a *CredentialAuthenticator) RecoverPassword(ctx context.Context, appID, username string) error {
	return ErrRecoveryNotSupported
}
