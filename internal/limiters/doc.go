// Package limiters implements attempt tracking backed by the shared key/value
// store.
//
// Counters are read-modify-write sequences over single keys. Two instances
// updating the same key concurrently may lose one update; the worst case is
// one extra attempt allowed before lockout. No distributed lock is taken.
package limiters
