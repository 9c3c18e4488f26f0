// Package frame defines the wire types for conversation stream frames and
// the ordering gate that protects downstream state from replayed events.
//
// # Frames
//
// Every server-sent event on a conversation stream carries one Frame: a
// kind discriminator plus kind-specific fields. Recognized kinds:
//
//   - lifecycle: conversation-turn status transitions
//   - message.delta: incremental assistant text keyed by message_id
//   - tool_call.input_delta / input_available / output_available / error
//   - guardrail_result: guardrail verdict records
//   - final: terminal payload with authoritative response text and usage
//
// Unknown kinds decode successfully but report Known() == false; callers
// ignore them so the client stays forward compatible with server additions.
//
// # Ordering
//
// Frames carry a sequence number scoped to a stream_id. The Gate tracks the
// highest sequence applied per stream and rejects anything at or below it,
// which makes at-least-once delivery safe to apply: duplicates and stale
// replays become no-ops. Rejections are counted but never logged per frame.
package frame
