package lockout

import (
	"crypto/subtle"
	"sync"
	"time"
)

const (
	// failureThreshold is the number of consecutive failed logons an
	// account may accumulate before the next failure locks it.
	failureThreshold = 10

	// lockDuration is how long an account stays locked once the
	// threshold is exceeded.
	lockDuration = 15 * time.Minute
)

// TokenStatus is the outcome of validating a refresh token against a Record.
type TokenStatus int

const (
	// TokenValid means the presented token matches, is unexpired, and has
	// uses remaining.
	TokenValid TokenStatus = iota
	// TokenInvalid means no token is set or the presented token does not
	// match the stored one.
	TokenInvalid
	// TokenExpired means the stored token's expiration has passed.
	TokenExpired
	// TokenMaxUses means the stored token has been used to refresh more
	// times than allowed.
	TokenMaxUses
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenInvalid:
		return "invalid"
	case TokenExpired:
		return "expired"
	case TokenMaxUses:
		return "max uses reached"
	default:
		return "unknown"
	}
}

// Record holds the lockout and refresh-token state for one account.
//
// All reads and mutations must happen while holding the record's lock
// ([Record.Lock]/[Record.Unlock]). The zero value is a usable, unlocked
// record with no token.
type Record struct {
	mu sync.Mutex

	failedAttempts    int
	lockedUntil       time.Time
	refreshToken      string
	refreshExpiration time.Time
	refreshCount      int
}

// Lock acquires the record's exclusive lock.
func (r *Record) Lock() { r.mu.Lock() }

// Unlock releases the record's exclusive lock.
func (r *Record) Unlock() { r.mu.Unlock() }

// IsLocked reports whether the account is currently locked out.
// An account is locked while now is before the lockout expiry.
func (r *Record) IsLocked() bool {
	return !r.lockedUntil.IsZero() && time.Now().Before(r.lockedUntil)
}

// ClearLockout clears the lockout expiry and resets the failure counter.
// Called on successful authentication and on manual unlock.
func (r *Record) ClearLockout() {
	r.lockedUntil = time.Time{}
	r.failedAttempts = 0
}

// RecordFailure increments the consecutive-failure counter. Once the
// counter exceeds the threshold the account is locked for the lockout
// duration. Returns whether the account is locked after this failure.
func (r *Record) RecordFailure() bool {
	r.failedAttempts++
	if r.failedAttempts > failureThreshold {
		r.lockedUntil = time.Now().Add(lockDuration)
	}
	return r.IsLocked()
}

// FailedAttempts returns the current consecutive-failure count.
func (r *Record) FailedAttempts() int { return r.failedAttempts }

// ValidateRefreshToken checks the presented token against the stored one.
// Outcomes are ranked: identity mismatch first, then expiration, then
// usage count.
func (r *Record) ValidateRefreshToken(token string, maxRefreshCount int) TokenStatus {
	if r.refreshToken == "" || token == "" {
		return TokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(r.refreshToken), []byte(token)) != 1 {
		return TokenInvalid
	}
	if !r.refreshExpiration.IsZero() && time.Now().After(r.refreshExpiration) {
		return TokenExpired
	}
	if r.refreshCount > maxRefreshCount {
		return TokenMaxUses
	}
	return TokenValid
}

// BumpRefreshCount increments the token's usage counter. Call only after
// a successful validation.
func (r *Record) BumpRefreshCount() { r.refreshCount++ }

// SetRefreshToken replaces the stored token and resets its expiration and
// usage counter. The caller sets the expiration afterward if desired.
func (r *Record) SetRefreshToken(token string) {
	r.refreshToken = token
	r.refreshExpiration = time.Time{}
	r.refreshCount = 0
}

// SetRefreshExpiration sets the stored token's expiration.
func (r *Record) SetRefreshExpiration(t time.Time) { r.refreshExpiration = t }

// ClearRefreshToken nulls the token, its expiration, and its usage
// counter. Used on failed refresh and on explicit logoff.
func (r *Record) ClearRefreshToken() {
	r.refreshToken = ""
	r.refreshExpiration = time.Time{}
	r.refreshCount = 0
}

// RefreshToken returns the currently stored token, or "" if none.
func (r *Record) RefreshToken() string { return r.refreshToken }

// RefreshExpiration returns the stored token's expiration, or the zero
// time if unset.
func (r *Record) RefreshExpiration() time.Time { return r.refreshExpiration }

// RefreshCount returns how many times the current token has been used.
func (r *Record) RefreshCount() int { return r.refreshCount }
