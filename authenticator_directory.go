package appsec

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/tmarces/appsec/lockout"
	"github.com/tmarces/appsec/password"
	"github.com/tmarces/appsec/token"
)

// DirectoryAuthenticator verifies passwords locally against Argon2id
// hashes held in the user directory. It mirrors login attempts and
// refresh-token rotations back to the directory for audit, and carries
// the email-based password recovery flow.
type DirectoryAuthenticator struct {
	core
	directory UserDirectory
	hasher    *password.Argon2
	recovery  *RecoveryStore
	emails    EmailQueuer
}

// NewDirectoryAuthenticator builds the strategy. tokens, metrics,
// recovery, and emails may be nil; without the latter two the recovery
// flow reports ErrRecoveryNotSupported.
func NewDirectoryAuthenticator(cfg Config, accounts *lockout.Registry, directory UserDirectory, hasher *password.Argon2, tokens *token.Manager, metrics *Metrics, recovery *RecoveryStore, emails EmailQueuer) (*DirectoryAuthenticator, error) {
	if accounts == nil || directory == nil || hasher == nil {
		return nil, ErrNotReady
	}
	return &DirectoryAuthenticator{
		core:      core{cfg: cfg.withDefaults(), accounts: accounts, tokens: tokens, metrics: metrics},
		directory: directory,
		hasher:    hasher,
		recovery:  recovery,
		emails:    emails,
	}, nil
}

// Login verifies the password against the directory's stored hash. A
// directory outage is treated like a failed verification: the account is
// charged a failure and the outcome is returned as data. Attempt
// mirroring is best effort; a mirror failure never changes the outcome.
func (a *DirectoryAuthenticator) Login(ctx context.Context, req LoginRequest, sink CookieSink) (AuthResponse, error) {
	rec := a.accounts.GetOrCreate(req.AppID, req.Username)
	rec.Lock()
	defer rec.Unlock()

	if rec.IsLocked() {
		a.metrics.Inc(MetricLoginFailure)
		return AuthResponse{Status: StatusAccountLocked, AccountLocked: true}, nil
	}

	user, err := a.directory.GetUser(ctx, req.AppID, req.Username)
	if err != nil {
		// A directory outage fails closed and is indistinguishable from a
		// bad password to the caller.
		a.cfg.Warn("appsec: user directory unavailable for %s.%s: %v", req.AppID, req.Username, err)
		locked := a.recordFailure(rec)
		return AuthResponse{Status: StatusUnknown, AccountLocked: locked, Message: "user directory unavailable"}, nil
	}
	if user == nil {
		locked := a.recordFailure(rec)
		return AuthResponse{Status: StatusUserIDNotFound, AccountLocked: locked}, nil
	}
	if user.Disabled {
		a.metrics.Inc(MetricLoginFailure)
		return AuthResponse{Status: StatusAccountDisabled}, nil
	}

	match, err := a.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		a.cfg.Warn("appsec: stored password hash for %s.%s is malformed: %v", req.AppID, req.Username, err)
	}
	if err != nil || !match {
		locked := a.recordFailure(rec)
		a.mirrorAttempt(ctx, req.AppID, user.UserID, false)
		return AuthResponse{Status: StatusUnknown, AccountLocked: locked}, nil
	}

	a.mirrorAttempt(ctx, req.AppID, user.UserID, true)

	resp, err := a.issueSession(Claims{
		UserID:   user.UserID,
		AppID:    req.AppID,
		Username: user.Username,
		UserType: user.UserType,
		DeviceID: req.DeviceID,
		Groups:   user.Groups,
	}, rec, sink)
	if err != nil {
		return resp, err
	}

	if mirrorErr := a.directory.RotateRefreshToken(ctx, req.AppID, user.UserID, resp.RefreshToken, resp.RefreshExpiration); mirrorErr != nil {
		a.cfg.Warn("appsec: refresh token mirror failed for %s.%s: %v", req.AppID, req.Username, mirrorErr)
	}
	return resp, nil
}

// Refresh runs the shared refresh-token exchange and mirrors the renewed
// expiration back to the directory.
func (a *DirectoryAuthenticator) Refresh(ctx context.Context, claims Claims, refreshToken string, sink CookieSink) (AuthResponse, error) {
	resp, err := a.refresh(claims, refreshToken, sink)
	if err == nil && resp.Status == StatusRefreshTokenValid {
		if mirrorErr := a.directory.RotateRefreshToken(ctx, claims.AppID, claims.UserID, resp.RefreshToken, resp.RefreshExpiration); mirrorErr != nil {
			a.cfg.Warn("appsec: refresh token mirror failed for %s.%s: %v", claims.AppID, claims.Username, mirrorErr)
		}
	}
	return resp, err
}

// Logoff drops the session. Safe to call with no session present.
func (a *DirectoryAuthenticator) Logoff(ctx context.Context, appID, username string, sink CookieSink) {
	a.logoff(appID, username, sink)
}

// RecoverPassword generates a one-time recovery code, stores its hash,
// and queues the recovery email to every address on file. The code never
// appears in logs or return values.
func (a *DirectoryAuthenticator) RecoverPassword(ctx context.Context, appID, username string) error {
	if a.recovery == nil || a.emails == nil {
		return ErrRecoveryNotSupported
	}
	if a.cfg.Recovery.TemplateID == "" {
		return ErrRecoveryTemplateMissing
	}

	user, err := a.directory.GetUser(ctx, appID, username)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.Disabled {
		// Do not disclose account existence to the caller.
		return nil
	}

	template, err := a.directory.GetEmailTemplate(ctx, appID, a.cfg.Recovery.TemplateID)
	if err != nil || template == "" {
		return ErrRecoveryTemplateMissing
	}

	emails, err := a.directory.GetRecoveryEmails(ctx, appID, username)
	if err != nil {
		return fmt.Errorf("get recovery emails: %w", err)
	}
	if user.Email != "" {
		emails = append(emails, user.Email)
	}
	if len(emails) == 0 {
		return ErrRecoveryEmailMissing
	}

	code, err := newRecoveryCode()
	if err != nil {
		return err
	}
	if err := a.recovery.Save(ctx, appID, username, user.UserID, code, a.cfg.Recovery.CodeTTL); err != nil {
		return err
	}

	a.metrics.Inc(MetricRecoveryRequest)
	if err := a.emails.QueueEmail(ctx, EmailMessage{
		Template: template,
		To:       emails,
		Tags:     map[string]string{"recovery_code": code, "username": username},
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailNotQueued, err)
	}
	return nil
}

// ValidateRecoveryCode consumes a presented recovery code. On success it
// returns the account's user id so the caller can proceed to a password
// change.
func (a *DirectoryAuthenticator) ValidateRecoveryCode(ctx context.Context, appID, username, code string) (string, error) {
	if a.recovery == nil {
		return "", ErrRecoveryNotSupported
	}
	return a.recovery.Consume(ctx, appID, username, code, a.cfg.Recovery.MaxAttempts)
}

// mirrorAttempt records the attempt in the directory, best effort.
func (a *DirectoryAuthenticator) mirrorAttempt(ctx context.Context, appID, userID string, success bool) {
	if err := a.directory.RecordLoginAttempt(ctx, appID, userID, success); err != nil {
		a.cfg.Warn("appsec: login attempt mirror failed for %s.%s: %v", appID, userID, err)
	}
}

const recoveryCodeDigits = 8

// newRecoveryCode draws a fixed-length numeric code from crypto/rand.
func newRecoveryCode() (string, error) {
	buf := make([]byte, recoveryCodeDigits)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	code := make([]byte, recoveryCodeDigits)
	for i, b := range buf {
		code[i] = '0' + b%10
	}
	return string(code), nil
}
