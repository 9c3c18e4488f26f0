// Package session owns the lifecycle of per-conversation event stream
// subscriptions.
//
// # Overview
//
// A Manager holds one Handle per logical slot (chat, title, metadata,
// billing, activity). Opening a slot transparently closes any prior handle
// in the same slot, so switching conversations can never leak a
// subscription. Each handle owns its own cancellation scope.
//
// # Close semantics
//
// Handle.Close is idempotent and synchronous from the caller's perspective:
// it flips an internal closed flag and cancels the transport context. The
// closed flag is checked before every callback dispatch, so once Close
// returns no further handler invocations occur for that session even if the
// underlying transport delivers buffered frames afterward.
//
// # Errors
//
// Transport errors are delivered to the OnError handler exactly once and the
// session stops. There is no automatic reconnect: an uncontrolled retry
// could replay deltas that were already applied, so retry is always a
// caller-initiated action.
package session
