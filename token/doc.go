// Package token issues and validates access/refresh token pairs bound to a
// device fingerprint and a per-user epoch.
//
// A token is accepted only if all of these hold:
//
//   - signature, algorithm and expiry verify
//   - its id has no revocation record
//   - its fingerprint matches the presenting device (rate limited per client IP)
//   - its epoch equals the user's current epoch
//
// Revoking everything for a user bumps the epoch and blacklists the ids in
// the user's token index; either mechanism alone kills the token.
package token
