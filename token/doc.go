// Package token issues and parses the signed access tokens that carry an
// authenticated principal's claims bundle between the platform's HTTP
// layer and its services. Tokens are short-lived JWTs signed with HS256
// or Ed25519; the long-lived refresh credential is the opaque token
// managed by the authenticator, never a JWT.
package token
