// Package api is the HTTP/SSE boundary to the conversation gateway.
//
// # Overview
//
// The Client wraps every collaborator interface the reconciliation engine
// consumes: history pages, message sends, conversation summaries, rename
// and memory-preference updates, and the five event streams (chat, title,
// metadata, billing, activity).
//
// Every call takes a context and is cancellable; stream openers return the
// raw SSE byte stream and leave parsing to the session layer. Failures are
// either transport errors (wrapped) or application errors decoded from the
// JSON error payload.
//
// # Authentication
//
// Requests carry an opaque bearer token when one is configured. Token
// acquisition and refresh are outside this client; see cmd/coven-chat for
// the env-var/config-file discovery convention.
package api
