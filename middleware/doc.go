// Package middleware adapts authcore.Engine to net/http.
//
// [Guard] reads a bearer access token, derives the caller's device context
// from the request and calls Engine.Validate; the resulting identity is
// available through [IdentityFromContext]. [WriteError] maps engine errors to
// status codes and stable error codes for handlers outside the guard.
//
// The package makes no authentication decisions of its own.
package middleware
