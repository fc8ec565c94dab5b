package appsec

import (
	"net/http"
	"time"
)

// ResponseCookieSink writes refresh-token cookies to an HTTP response.
// Cookies are HttpOnly, Secure, and SameSite=Strict; the path scopes the
// cookie to one application's API subtree.
type ResponseCookieSink struct {
	W http.ResponseWriter
}

// SetRefreshCookie writes the cookie.
func (s ResponseCookieSink) SetRefreshCookie(name, value, path string, expires time.Time) {
	http.SetCookie(s.W, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// DeleteRefreshCookie expires the cookie immediately.
func (s ResponseCookieSink) DeleteRefreshCookie(name, path string) {
	http.SetCookie(s.W, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// NopCookieSink discards cookie writes; used for server-internal calls
// that have no HTTP response in flight.
type NopCookieSink struct{}

func (NopCookieSink) SetRefreshCookie(name, value, path string, expires time.Time) {}
func (NopCookieSink) DeleteRefreshCookie(name, path string)                        {}
