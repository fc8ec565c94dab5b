// Package appsec is the security and scheduling core of a multi-tenant,
// data-dictionary-driven application platform.
//
// It provides group-based route authorization backed by a refreshable
// in-memory cache ([github.com/tmarces/appsec/routeauth]), per-account
// lockout and refresh-token state ([github.com/tmarces/appsec/lockout]),
// two interchangeable authentication strategies
// ([CredentialAuthenticator], [DirectoryAuthenticator]), and a
// bounded-concurrency background task queue
// ([github.com/tmarces/appsec/taskqueue]) for off-request work such as
// email delivery and security-cache resyncs.
//
// The HTTP controllers, SQL dictionary, and UI of the platform are
// deliberately out of scope: this core is invoked in-process and talks
// to them through small collaborator interfaces (CredentialStore,
// UserDirectory, routeauth.ConfigStore, EmailSender, CookieSink).
package appsec
