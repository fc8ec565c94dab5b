// Package routeauth answers "may this principal, in this application,
// call this route" from a refreshable in-memory cache of per-group
// allowed route sets.
//
// Authorization reads are lock-free over an immutable snapshot; refreshes
// rebuild an application's records wholesale and swap the snapshot
// atomically, so readers always see either the fully-old or fully-new
// permission set for an application, never a partial update.
package routeauth
