// ABOUTME: Core types for reconciled conversation state
// ABOUTME: Messages, tool calls, lifecycle status, and snapshot shapes

package conversation

import (
	"encoding/json"
	"time"

	"github.com/2389/coven-client/internal/frame"
)

// Status is the coarse conversation-turn lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusErrored    Status = "errored"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageKind discriminates ordinary messages from synthetic entries.
type MessageKind string

const (
	MessageKindNormal           MessageKind = "normal"
	MessageKindMemoryCheckpoint MessageKind = "memory_checkpoint"
)

// Message is one entry in the conversation. Ordering is insertion order;
// older history pages prepend and never reorder existing ids.
type Message struct {
	ID               string
	Role             Role
	Kind             MessageKind
	Content          string
	Streaming        bool
	Timestamp        time.Time
	Attachments      []frame.Attachment
	Citations        []frame.Citation
	StructuredOutput json.RawMessage

	// Pending marks a locally-created optimistic message that has not yet
	// been confirmed by a server event. A failed send keeps the message
	// with Pending set so the user can retry.
	Pending bool
}

// ToolType distinguishes plain function tools from delegated agent tools.
type ToolType string

const (
	ToolTypeFunction ToolType = "function"
	ToolTypeAgent    ToolType = "agent"
)

// ToolStatus is the per-invocation tool state machine position.
type ToolStatus string

const (
	ToolInputStreaming  ToolStatus = "input-streaming"
	ToolInputAvailable  ToolStatus = "input-available"
	ToolOutputAvailable ToolStatus = "output-available"
	ToolErrored         ToolStatus = "error"
)

// Terminal reports whether the status accepts no further transitions.
func (s ToolStatus) Terminal() bool {
	return s == ToolOutputAvailable || s == ToolErrored
}

// ToolCall tracks one tool invocation through its state machine.
type ToolCall struct {
	ID        string
	Name      string
	Type      ToolType
	Status    ToolStatus
	InputText string // accumulated argument deltas while input-streaming
	Input     json.RawMessage
	Output    json.RawMessage
	ErrorText string
}

// Snapshot is an immutable-per-update copy of conversation state, safe to
// hand to a renderer while frames keep arriving.
type Snapshot struct {
	ConversationID string
	Status         Status
	ActiveAgent    string
	ReasoningText  string
	ErrorMessage   string
	HistoryError   string

	Messages  []Message
	ToolCalls []ToolCall

	// Anchored maps a message id to the tool-call ids surfaced inline after
	// it. Only anchors whose target message currently exists appear here.
	Anchored map[string][]string
	// Unanchored lists tool-call ids with no valid anchor, in arrival order.
	// Renderers surface these at the stream tail.
	Unanchored []string

	Guardrails []frame.GuardrailResult
	Usage      frame.TokenUsage
}

// Message returns the snapshot message with the given id, if present.
func (s *Snapshot) Message(id string) (Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// ToolCall returns the snapshot tool call with the given id, if present.
func (s *Snapshot) ToolCall(id string) (ToolCall, bool) {
	for _, tc := range s.ToolCalls {
		if tc.ID == id {
			return tc, true
		}
	}
	return ToolCall{}, false
}
