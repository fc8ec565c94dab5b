package appsec

// AuthStatus is an authentication or refresh outcome. Outcomes are
// returned as data to the controller layer, never as errors.
type AuthStatus int

const (
	// StatusUnknown is the zero outcome; callers must treat it as failure.
	StatusUnknown AuthStatus = iota
	// StatusInvalidRefreshToken means no token is stored or the presented
	// token does not match.
	StatusInvalidRefreshToken
	// StatusRefreshTokenExpired means the stored token's expiration passed.
	StatusRefreshTokenExpired
	// StatusMaxRefreshReached means the token exceeded its allowed uses.
	StatusMaxRefreshReached
	// StatusUserIDNotFound means the account does not exist in the store.
	StatusUserIDNotFound
	// StatusAccountLocked means the account is locked out.
	StatusAccountLocked
	// StatusAccountDisabled means the account is administratively disabled.
	StatusAccountDisabled
	// StatusRefreshTokenValid means a refresh validated successfully.
	StatusRefreshTokenValid
	// StatusLoggedInOK means credentials verified and a session was issued.
	StatusLoggedInOK
	// StatusUpdated means a store-side mutation was applied.
	StatusUpdated
)

func (s AuthStatus) String() string {
	switch s {
	case StatusInvalidRefreshToken:
		return "invalid refresh token"
	case StatusRefreshTokenExpired:
		return "refresh token expired"
	case StatusMaxRefreshReached:
		return "max refresh count reached"
	case StatusUserIDNotFound:
		return "user id not found"
	case StatusAccountLocked:
		return "account locked"
	case StatusAccountDisabled:
		return "account disabled"
	case StatusRefreshTokenValid:
		return "refresh token valid"
	case StatusLoggedInOK:
		return "logged in"
	case StatusUpdated:
		return "updated"
	default:
		return "unknown"
	}
}
