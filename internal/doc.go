// Package internal contains helper utilities private to authcore: opaque
// random values for OAuth state and log-safe correlation digests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function protocol orchestrators for every Engine operation
//   - limiters: login attempt tracking and lockout
//   - rate: fixed-window request counters for the HTTP service
//   - stores: token epoch, revocation and index records
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
