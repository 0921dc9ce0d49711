// Package oauth manages the one-time records behind an OAuth authorization
// round trip: the CSRF state, the PKCE code verifier and the out-of-band
// profile fragment some providers post before the main callback.
//
// Every record is keyed by the opaque state value, lives in the shared store
// under its own namespace with a TTL, and is consumed with an atomic
// get-and-delete. A state validates at most once across all instances.
package oauth
