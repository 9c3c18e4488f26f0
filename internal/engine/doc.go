// ABOUTME: Package doc for the engine composition root
// ABOUTME: Describes how streams, state, and caches are wired per conversation

// Package engine wires the client together: one active conversation's
// event stream, its title and metadata side channels, the account-wide
// billing and activity streams, the conversation list cache, and the
// snapshot fan-out to observers.
//
// # Overview
//
// The engine owns exactly one active conversation at a time. Opening a
// conversation closes the previous one's stream slots first, so after any
// sequence of switches only the latest conversation holds subscriptions.
// Frames that arrive for a closed session are discarded by the session
// layer's closed-flag gate before they can touch state.
//
// All failure handling degrades instead of crashing: history fetch errors
// become a banner on the conversation, send failures retain the message
// for retry, and side-channel errors resolve silently.
package engine
