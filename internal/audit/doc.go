// Package audit buffers security events and delivers them to a sink off the
// request path.
//
// The engine decides which events to emit; this package only relays them.
// It must not import the root package or any sibling internal package.
package audit
