// Package rate provides Redis-backed fixed-window counters for request
// budgets that must hold across server instances, such as per-IP limits on
// the login and registration endpoints of cmd/authd.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit. Keys are "<prefix>:rl:<bucket>:<key>".
// Account lockout is not built here; it lives in internal/limiters over kv.
package rate
