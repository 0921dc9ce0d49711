// Package kv defines the shared, TTL-capable key/value store that every
// authcore instance talks to, and a Redis implementation of it.
//
// All security state (token epochs, revocations, login attempts, OAuth state)
// lives behind [Store]. Nothing in authcore keeps correctness-relevant state in
// process memory, so any number of server processes may share one store.
//
// Only single-key atomicity is assumed. Read-modify-write sequences built on
// top of Get and Set are knowingly racy across instances.
package kv
