// Package stores persists the short-lived token bookkeeping records of the
// auth core: per-user token epochs, individual token revocations and the
// per-user index of recently issued tokens.
//
// # Design
//
// Every record is a JSON document in the shared [kv.Store] with a TTL no
// longer than the tokens it governs. Updates are read-modify-write over a
// single key; concurrent writers from different instances can lose an update
// (an epoch bump may be delayed by one write, an index entry may be dropped).
// The revocation blacklist covers the index race and the epoch covers the
// blacklist race, so either mechanism alone still kills a token.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Persist raw token strings. Only token ids and expiries are stored.
package stores
