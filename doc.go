// Package authcore issues, validates, revokes and federates user sessions.
//
// An [Engine] built with [Builder] composes the fingerprint engine, login
// lockout tracker, token authority, OAuth state manager and provider
// adapters into the login, register, refresh, logout and social-callback
// protocols. Every piece of security state lives in a shared TTL-capable
// store (Redis in production), so any number of stateless server processes
// can serve the same users.
//
// Engine methods are safe for concurrent use after Build. Request context
// (client IP and user agent) is passed explicitly as a [DeviceContext].
//
// Errors are sentinel values; use errors.Is against ErrInvalidCredentials,
// ErrAccountLocked and friends, and [HTTPStatus] to map them to a transport.
package authcore
