package appsec

import (
	"context"
	"time"
)

// CredentialResult is the structured outcome a credential store returns
// for a verification attempt.
type CredentialResult struct {
	Status   AuthStatus
	UserID   string
	UserType string
	Groups   []string
	Email    string
}

// CredentialStore verifies credentials remotely (server-login style).
// The store owns password checking; the core only interprets the
// structured status it returns.
type CredentialStore interface {
	VerifyCredentials(ctx context.Context, appID, username, password, deviceID string) (CredentialResult, error)
}

// UserRecord is a full account record from the user directory.
type UserRecord struct {
	UserID       string
	Username     string
	PasswordHash string
	UserType     string
	Disabled     bool
	Groups       []string
	Email        string
}

// UserDirectory is the data-dictionary-backed account store used by the
// directory authenticator. Password hashes are verified by the core;
// login attempts and token rotations are mirrored back for audit.
type UserDirectory interface {
	GetUser(ctx context.Context, appID, username string) (*UserRecord, error)
	RecordLoginAttempt(ctx context.Context, appID, userID string, success bool) error
	RotateRefreshToken(ctx context.Context, appID, userID, token string, expires time.Time) error
	GetEmailTemplate(ctx context.Context, appID, templateID string) (string, error)
	GetRecoveryEmails(ctx context.Context, appID, username string) ([]string, error)
}

// EmailMessage is a templated email handed to the email collaborator.
type EmailMessage struct {
	Template string
	To       []string
	Tags     map[string]string
}

// EmailSender delivers one email. Implementations talk to the platform's
// mail infrastructure; the core only schedules the delivery.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailQueuer accepts an email for asynchronous delivery.
type EmailQueuer interface {
	QueueEmail(ctx context.Context, msg EmailMessage) error
}

// CookieSink abstracts the HTTP response surface the authenticators use
// for the refresh-token cookie.
type CookieSink interface {
	SetRefreshCookie(name, value, path string, expires time.Time)
	DeleteRefreshCookie(name, path string)
}
