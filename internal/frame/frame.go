// ABOUTME: Wire types and JSON decoding for conversation stream frames
// ABOUTME: Classifies inbound events by kind with forward-compatible fallback

package frame

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates the payload carried by a Frame.
type Kind string

const (
	KindLifecycle           Kind = "lifecycle"
	KindMessageDelta        Kind = "message.delta"
	KindToolInputDelta      Kind = "tool_call.input_delta"
	KindToolInputAvailable  Kind = "tool_call.input_available"
	KindToolOutputAvailable Kind = "tool_call.output_available"
	KindToolError           Kind = "tool_call.error"
	KindGuardrailResult     Kind = "guardrail_result"
	KindFinal               Kind = "final"
)

// Known reports whether the kind is one the client understands.
// Unknown kinds are ignored, not fatal.
func (k Kind) Known() bool {
	switch k {
	case KindLifecycle, KindMessageDelta,
		KindToolInputDelta, KindToolInputAvailable, KindToolOutputAvailable, KindToolError,
		KindGuardrailResult, KindFinal:
		return true
	}
	return false
}

// IsToolCall reports whether the kind is one of the tool_call.* events.
func (k Kind) IsToolCall() bool {
	switch k {
	case KindToolInputDelta, KindToolInputAvailable, KindToolOutputAvailable, KindToolError:
		return true
	}
	return false
}

// Lifecycle status values carried by lifecycle frames.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusErrored    = "errored"
)

// ErrMissingStreamID is returned when a frame has no stream_id to scope its
// sequence number to.
var ErrMissingStreamID = errors.New("frame missing stream_id")

// ErrMissingKind is returned when a frame carries no kind discriminator.
var ErrMissingKind = errors.New("frame missing kind")

// TokenUsage is the token accounting attached to final payloads and
// guardrail verdicts.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Attachment references a file surfaced with a final response.
type Attachment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"media_type,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Citation references a source the assistant drew on.
type Citation struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// GuardrailResult is a guardrail verdict. Records are append-only: once
// created they are never mutated.
type GuardrailResult struct {
	Stage            string          `json:"stage"`
	Key              string          `json:"key"`
	Name             string          `json:"name"`
	Confidence       float64         `json:"confidence"`
	TripwireTriggered bool           `json:"tripwire_triggered"`
	Flagged          bool            `json:"flagged"`
	Suppressed       bool            `json:"suppressed"`
	MaskedContent    string          `json:"masked_content,omitempty"`
	Details          json.RawMessage `json:"details,omitempty"`
	TokenUsage       *TokenUsage     `json:"token_usage,omitempty"`
}

// FinalPayload is the authoritative terminal payload for a response.
type FinalPayload struct {
	Status               string          `json:"status"`
	ResponseText         string          `json:"response_text"`
	StructuredOutput     json.RawMessage `json:"structured_output,omitempty"`
	ReasoningSummaryText string          `json:"reasoning_summary_text,omitempty"`
	RefusalText          string          `json:"refusal_text,omitempty"`
	Attachments          []Attachment    `json:"attachments,omitempty"`
	Citations            []Citation      `json:"citations,omitempty"`
	Usage                *TokenUsage     `json:"usage,omitempty"`
}

// Frame is one discrete event delivered over a conversation stream.
type Frame struct {
	Schema          string `json:"schema,omitempty"`
	EventID         string `json:"event_id"`
	StreamID        string `json:"stream_id"`
	Sequence        int64  `json:"sequence_number"`
	ServerTimestamp string `json:"server_timestamp,omitempty"`
	Kind            Kind   `json:"kind"`
	ConversationID  string `json:"conversation_id,omitempty"`
	ResponseID      string `json:"response_id,omitempty"`
	Agent           string `json:"agent,omitempty"`

	// lifecycle
	Status    string `json:"status,omitempty"`
	ErrorText string `json:"error,omitempty"`

	// message.delta
	MessageID string `json:"message_id,omitempty"`
	Delta     string `json:"delta,omitempty"`

	// tool_call.*
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolType   string          `json:"tool_type,omitempty"`
	InputDelta string          `json:"input_delta,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`

	Guardrail *GuardrailResult `json:"guardrail,omitempty"`
	Final     *FinalPayload    `json:"final,omitempty"`
}

// Decode parses a single frame from the data payload of a server-sent event.
// Unknown kinds decode successfully; structurally invalid frames (no kind,
// no stream_id) are rejected so the ordering gate always has something to
// scope against.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}
	if f.Kind == "" {
		return nil, ErrMissingKind
	}
	if f.StreamID == "" {
		return nil, ErrMissingStreamID
	}
	return &f, nil
}
