// Package jwt signs and verifies the access and refresh tokens issued by
// authcore. Both kinds share one claims shape that carries the subject, a
// per-issuance token id, a device fingerprint and the subject's token epoch.
//
// Verification distinguishes an expired token ([ErrExpired]) from any other
// failure ([ErrInvalid]) so callers can phrase client messages accordingly.
package jwt
