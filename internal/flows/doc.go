// Package flows contains the request protocols behind every Engine
// operation as pure functions over typed dependency structs.
//
// Each RunX function coordinates the lockout tracker, account store, state
// manager, provider adapters and token authority through the funcs in its
// Deps struct, and reports a failure kind alongside the error so the engine
// can record metrics and audit events without re-deriving the cause.
//
// Flow functions hold no state between calls and do not import the root
// package.
package flows
