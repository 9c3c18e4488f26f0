// Package sidechannel reconciles the optional per-conversation secondary
// streams: token-by-token title generation and structured metadata snapshots.
//
// Both follow the same fail-open contract. On conversation open the
// conversation is marked "title pending" and a wall-clock timer starts; the
// first non-empty changed value resolves the pending state and propagates
// the title to the conversation list. If the timer expires, the stream
// errors, or the sync is closed before anything arrives, the pending state
// resolves without a value. A side-channel failure never reaches the
// primary chat error state and never blocks the core chat experience.
//
// Timers are wall-clock, not stream-derived: a stream that never emits
// still resolves.
package sidechannel
