// Package fingerprint binds tokens to the client that obtained them.
//
// A fingerprint is a SHA-256 digest over the normalized client IP, the
// normalized user agent, a coarse time bucket and a server secret. Identical
// inputs inside one bucket always produce the same digest; crossing a bucket
// boundary changes it.
//
// Comparisons that carry a client IP are throttled per IP through records in
// the shared [kv.Store], so the limit holds across server instances.
package fingerprint
