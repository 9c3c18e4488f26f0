// ABOUTME: Reducer dispatch applying stream frames to conversation state
// ABOUTME: Tagged-union switch on frame kind; unknown kinds are ignored

package conversation

import (
	"time"

	"github.com/2389/coven-client/internal/frame"
)

// Apply folds one admitted frame into the state. Unknown kinds are ignored
// for forward compatibility. Apply never fails: anomalies degrade to no-ops
// because they are expected under at-least-once delivery.
func (s *State) Apply(f *frame.Frame) {
	if f == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(f)
}

// ApplyFor applies f only while the state still holds conversationID.
// The identity check and the mutation share one critical section with
// Reset, so a frame handler that lost a conversation-switch race cannot
// write into the new conversation's state. Returns whether f was applied.
func (s *State) ApplyFor(conversationID string, f *frame.Frame) bool {
	if f == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID != conversationID {
		s.logger.Debug("dropping frame for switched conversation",
			"frame_conversation_id", conversationID, "current", s.conversationID)
		return false
	}
	s.applyLocked(f)
	return true
}

func (s *State) applyLocked(f *frame.Frame) {
	switch f.Kind {
	case frame.KindLifecycle:
		s.applyLifecycle(f)
	case frame.KindMessageDelta:
		s.applyMessageDelta(f)
	case frame.KindFinal:
		s.applyFinal(f)
	case frame.KindToolInputDelta, frame.KindToolInputAvailable,
		frame.KindToolOutputAvailable, frame.KindToolError:
		s.applyToolEvent(f)
	case frame.KindGuardrailResult:
		s.applyGuardrail(f)
	default:
		s.logger.Debug("ignoring unknown frame kind", "kind", string(f.Kind))
	}
}

func (s *State) applyLifecycle(f *frame.Frame) {
	switch f.Status {
	case frame.StatusInProgress:
		s.status = StatusInProgress
		s.errorMessage = ""
		s.reasoningText = ""
		if f.Agent != "" {
			s.activeAgent = f.Agent
		}
	case frame.StatusCompleted:
		s.status = StatusCompleted
		s.stopStreamingLocked()
	case frame.StatusErrored:
		s.status = StatusErrored
		if f.ErrorText != "" {
			s.errorMessage = f.ErrorText
		}
		s.stopStreamingLocked()
	}
}

// stopStreamingLocked clears streaming flags when a turn reaches a terminal
// lifecycle state, so a lost final frame cannot leave a spinner stuck.
func (s *State) stopStreamingLocked() {
	for _, m := range s.messages {
		m.Streaming = false
	}
}

func (s *State) applyMessageDelta(f *frame.Frame) {
	if f.MessageID == "" {
		return
	}

	m, ok := s.messages[f.MessageID]
	if !ok {
		m = &Message{
			ID:        f.MessageID,
			Role:      RoleAssistant,
			Kind:      MessageKindNormal,
			Streaming: true,
			Timestamp: time.Now(),
		}
		s.messages[m.ID] = m
		s.order = append(s.order, m.ID)
	}
	m.Content += f.Delta
	m.Pending = false
	if s.status == StatusIdle {
		s.status = StatusInProgress
	}
}

func (s *State) applyFinal(f *frame.Frame) {
	if f.Final == nil {
		return
	}
	fin := f.Final

	// The streamed message (if any) becomes authoritative; otherwise a new
	// one carries the response.
	id := f.MessageID
	if id == "" {
		id = f.ResponseID
	}
	var m *Message
	if id != "" {
		m = s.messages[id]
	}
	if m == nil {
		m = s.lastStreamingAssistantLocked()
	}
	if m == nil {
		if id == "" {
			id = "final-" + f.EventID
		}
		m = &Message{
			ID:        id,
			Role:      RoleAssistant,
			Kind:      MessageKindNormal,
			Timestamp: time.Now(),
		}
		s.messages[m.ID] = m
		s.order = append(s.order, m.ID)
	}

	text := fin.ResponseText
	if text == "" && fin.RefusalText != "" {
		text = fin.RefusalText
	}
	m.Content = text
	m.Streaming = false
	m.StructuredOutput = fin.StructuredOutput
	if len(fin.Attachments) > 0 {
		m.Attachments = fin.Attachments
	}
	if len(fin.Citations) > 0 {
		m.Citations = fin.Citations
	}

	s.reasoningText = fin.ReasoningSummaryText
	if fin.Usage != nil {
		s.usage.InputTokens += fin.Usage.InputTokens
		s.usage.OutputTokens += fin.Usage.OutputTokens
		s.usage.TotalTokens += fin.Usage.TotalTokens
	}

	switch fin.Status {
	case frame.StatusErrored:
		s.status = StatusErrored
	default:
		s.status = StatusCompleted
	}
}

// lastStreamingAssistantLocked returns the most recent assistant message
// still streaming, or nil.
func (s *State) lastStreamingAssistantLocked() *Message {
	for i := len(s.order) - 1; i >= 0; i-- {
		m := s.messages[s.order[i]]
		if m != nil && m.Role == RoleAssistant && m.Streaming {
			return m
		}
	}
	return nil
}

func (s *State) applyGuardrail(f *frame.Frame) {
	if f.Guardrail == nil {
		return
	}
	g := *f.Guardrail
	s.guardrails = append(s.guardrails, g)

	if g.TokenUsage != nil {
		s.usage.InputTokens += g.TokenUsage.InputTokens
		s.usage.OutputTokens += g.TokenUsage.OutputTokens
		s.usage.TotalTokens += g.TokenUsage.TotalTokens
	}

	// A suppressed verdict with masked content redacts the flagged message.
	if g.Suppressed && g.MaskedContent != "" && f.MessageID != "" {
		if m, ok := s.messages[f.MessageID]; ok {
			m.Content = g.MaskedContent
		}
	}
}
