// ABOUTME: Conversation-scoped state container with reducer-style mutation
// ABOUTME: Owns message order, tool calls, anchors, guardrails, and lifecycle

package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-client/internal/frame"
)

// State is the single source of truth for one conversation's reconciled
// view. All mutation goes through reducer operations; renderers read
// through Snapshot().
type State struct {
	mu     sync.Mutex
	logger *slog.Logger

	conversationID string
	status         Status
	activeAgent    string
	reasoningText  string
	errorMessage   string
	historyError   string

	order    []string
	messages map[string]*Message

	toolOrder []string
	tools     map[string]*ToolCall
	// anchors: message id -> ordered tool-call ids. Additive only; validity
	// against the current message set is computed at snapshot time.
	anchors  map[string][]string
	anchorOf map[string]string // tool id -> message id, for idempotent appends

	guardrails []frame.GuardrailResult
	usage      frame.TokenUsage
}

// NewState creates an empty state for the given conversation.
// Pass nil logger for default.
func NewState(conversationID string, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	s := &State{
		logger: logger.With("component", "conversation", "conversation_id", conversationID),
	}
	s.resetLocked(conversationID)
	return s
}

// resetLocked reinitializes all per-conversation storage. Must hold mu
// (or be called from a constructor before the state is shared).
func (s *State) resetLocked(conversationID string) {
	s.conversationID = conversationID
	s.status = StatusIdle
	s.activeAgent = ""
	s.reasoningText = ""
	s.errorMessage = ""
	s.historyError = ""
	s.order = nil
	s.messages = make(map[string]*Message)
	s.toolOrder = nil
	s.tools = make(map[string]*ToolCall)
	s.anchors = make(map[string][]string)
	s.anchorOf = make(map[string]string)
	s.guardrails = nil
	s.usage = frame.TokenUsage{}
}

// Reset discards all state and rebinds to a new conversation id. Called on
// conversation switch or deletion.
func (s *State) Reset(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(conversationID)
}

// ConversationID returns the conversation this state is bound to.
func (s *State) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SeedHistory replaces the message list with an initial history page.
// Called once per conversation open, before any live frame is applied.
func (s *State) SeedHistory(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.messages = make(map[string]*Message)
	for i := range msgs {
		m := msgs[i]
		if m.Kind == "" {
			m.Kind = MessageKindNormal
		}
		if _, dup := s.messages[m.ID]; dup {
			continue
		}
		s.messages[m.ID] = &m
		s.order = append(s.order, m.ID)
	}
	s.historyError = ""
}

// PrependHistory inserts an older page before the current messages.
// Existing ids keep their identity and relative order; duplicates across
// the page boundary are dropped.
func (s *State) PrependHistory(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []string
	for i := range msgs {
		m := msgs[i]
		if _, dup := s.messages[m.ID]; dup {
			continue
		}
		if m.Kind == "" {
			m.Kind = MessageKindNormal
		}
		s.messages[m.ID] = &m
		fresh = append(fresh, m.ID)
	}
	if len(fresh) > 0 {
		s.order = append(fresh, s.order...)
	}
}

// SetHistoryError records a history-fetch failure. The conversation stays
// usable; the caller offers a retry affordance.
func (s *State) SetHistoryError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyError = msg
}

// SetError records a primary-stream transport error. Never called by
// side-channels; their failures stay out of chat state.
func (s *State) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorMessage = msg
}

// SetErrorFor records a primary-stream transport error only while the
// state still holds conversationID, mirroring ApplyFor's identity check.
// Returns whether the error was recorded.
func (s *State) SetErrorFor(conversationID, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID != conversationID {
		return false
	}
	s.errorMessage = msg
	return true
}

// ClearErrors clears both error fields, typically before a retry.
func (s *State) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorMessage = ""
	s.historyError = ""
}

// AppendLocalUser adds an optimistic user message immediately on submit,
// before any server confirmation, and returns it. The message is reconciled
// by id when the server echoes it; until then it is Pending.
func (s *State) AppendLocalUser(content string, attachments []frame.Attachment) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &Message{
		ID:          "local-" + uuid.New().String(),
		Role:        RoleUser,
		Kind:        MessageKindNormal,
		Content:     content,
		Timestamp:   time.Now(),
		Attachments: attachments,
		Pending:     true,
	}
	s.messages[m.ID] = m
	s.order = append(s.order, m.ID)
	return *m
}

// MarkSendFailed flags a failed optimistic send. The message is retained,
// never silently removed, so the user can retry it.
func (s *State) MarkSendFailed(messageID, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[messageID]; !ok {
		return
	}
	s.errorMessage = errMsg
}

// ConfirmLocalSend marks an optimistic message as server-confirmed. If the
// server assigned a different id, the message is re-keyed in place without
// changing its position.
func (s *State) ConfirmLocalSend(localID, serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[localID]
	if !ok {
		return
	}
	m.Pending = false
	if serverID == "" || serverID == localID {
		return
	}
	if _, taken := s.messages[serverID]; taken {
		return
	}
	delete(s.messages, localID)
	m.ID = serverID
	s.messages[serverID] = m
	for i, id := range s.order {
		if id == localID {
			s.order[i] = serverID
			break
		}
	}
	if anchored, ok := s.anchors[localID]; ok {
		delete(s.anchors, localID)
		s.anchors[serverID] = anchored
		for _, toolID := range anchored {
			s.anchorOf[toolID] = serverID
		}
	}
}

// Snapshot returns an immutable copy of the current state.
func (s *State) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		ConversationID: s.conversationID,
		Status:         s.status,
		ActiveAgent:    s.activeAgent,
		ReasoningText:  s.reasoningText,
		ErrorMessage:   s.errorMessage,
		HistoryError:   s.historyError,
		Usage:          s.usage,
		Anchored:       make(map[string][]string),
	}

	snap.Messages = make([]Message, 0, len(s.order))
	for _, id := range s.order {
		if m, ok := s.messages[id]; ok {
			snap.Messages = append(snap.Messages, *m)
		}
	}

	snap.ToolCalls = make([]ToolCall, 0, len(s.toolOrder))
	for _, id := range s.toolOrder {
		if tc, ok := s.tools[id]; ok {
			snap.ToolCalls = append(snap.ToolCalls, *tc)
		}
	}

	// An anchor is valid only while its target message exists; everything
	// else lands in the unanchored trailing group.
	validAnchor := make(map[string]bool, len(s.anchorOf))
	for msgID, toolIDs := range s.anchors {
		if _, exists := s.messages[msgID]; !exists {
			continue
		}
		snap.Anchored[msgID] = append([]string(nil), toolIDs...)
		for _, toolID := range toolIDs {
			validAnchor[toolID] = true
		}
	}
	for _, toolID := range s.toolOrder {
		if !validAnchor[toolID] {
			snap.Unanchored = append(snap.Unanchored, toolID)
		}
	}

	snap.Guardrails = append([]frame.GuardrailResult(nil), s.guardrails...)
	return snap
}
