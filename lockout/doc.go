// Package lockout tracks per-account failed-logon state, lockout expiry,
// and the single live refresh token for each account.
//
// A Record is safe to mutate only while holding its lock. Callers own the
// compound check-then-act sequences (check locked, then authenticate, then
// record the outcome), so Record exposes its lock explicitly instead of
// locking per method. Records for unrelated accounts never contend.
package lockout
