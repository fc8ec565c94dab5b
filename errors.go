package appsec

import "errors"

var (
	// ErrNotReady indicates the component was constructed without a
	// required collaborator.
	ErrNotReady = errors.New("security core not initialized")
	// ErrRecoveryNotSupported is returned by authenticators that do not
	// implement the password recovery flow.
	ErrRecoveryNotSupported = errors.New("password recovery not supported by this authenticator")
	// ErrRecoveryTemplateMissing means no recovery email template is
	// configured for the application.
	ErrRecoveryTemplateMissing = errors.New("password recovery email template not found")
	// ErrRecoveryEmailMissing means the account has no recovery email
	// addresses on file.
	ErrRecoveryEmailMissing = errors.New("no recovery email on file")
	// ErrRecoveryCodeInvalid means a presented recovery code did not
	// match, is expired, or exhausted its attempts.
	ErrRecoveryCodeInvalid = errors.New("invalid recovery code")
	// ErrRecoveryUnavailable means the recovery code backend is
	// unreachable.
	ErrRecoveryUnavailable = errors.New("recovery code backend unavailable")
	// ErrEmailNotQueued means the background queue refused the email
	// delivery task.
	ErrEmailNotQueued = errors.New("email delivery task not queued")
)
