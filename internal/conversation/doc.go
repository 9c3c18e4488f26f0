// Package conversation holds the reconciled state of one conversation and
// the reducer that applies stream frames to it.
//
// # Overview
//
// The State is the single conversation-scoped container consumed by every
// renderer. Mutations go through defined reducer-style operations only:
//
//   - Apply(frame): tagged-union dispatch on the frame kind
//   - SeedHistory / PrependHistory: paginated history merging
//   - AppendLocalUser / MarkSendFailed: optimistic sends
//   - Reset: discard everything on conversation switch
//
// Consumers never reach into fields; they call Snapshot() and get an
// immutable copy safe to render while streaming continues.
//
// # Message reconciliation
//
// A message.delta frame for an unknown message id creates a streaming
// assistant message; for a known id it appends to the content. The final
// frame replaces streamed content with the authoritative response text and
// clears the streaming flag. History pages seed the list before live frames
// and later pages prepend without disturbing existing ids or order.
//
// # Tool calls
//
// Each tool invocation runs a small state machine:
//
//	input-streaming -> input-available -> (output-available | error)
//
// Backward or repeated transitions are ignored, not errors: retried streams
// can deliver tool events out of order. Tool calls anchor to the message
// they originated from; an anchor whose target message does not (yet) exist
// leaves the tool in the unanchored trailing group.
//
// # Guardrails
//
// Guardrail verdicts are append-only records. A suppressed verdict with
// masked content replaces the flagged message's text.
package conversation
