// ABOUTME: Tool-call state machine and message anchoring
// ABOUTME: Forward-only transitions; out-of-order events degrade to no-ops

package conversation

import "github.com/2389/coven-client/internal/frame"

// statusRank orders tool statuses so backward transitions can be detected.
// Terminal states share a rank: once terminal, nothing moves.
var statusRank = map[ToolStatus]int{
	ToolInputStreaming:  0,
	ToolInputAvailable:  1,
	ToolOutputAvailable: 2,
	ToolErrored:         2,
}

func (s *State) applyToolEvent(f *frame.Frame) {
	if f.ToolCallID == "" {
		return
	}

	tc, ok := s.tools[f.ToolCallID]
	if !ok {
		tc = &ToolCall{
			ID:     f.ToolCallID,
			Name:   f.ToolName,
			Type:   ToolTypeFunction,
			Status: ToolInputStreaming,
		}
		if f.ToolType == string(ToolTypeAgent) {
			tc.Type = ToolTypeAgent
		}
		s.tools[tc.ID] = tc
		s.toolOrder = append(s.toolOrder, tc.ID)
	}
	if tc.Name == "" && f.ToolName != "" {
		tc.Name = f.ToolName
	}

	switch f.Kind {
	case frame.KindToolInputDelta:
		if s.advanceLocked(tc, ToolInputStreaming) {
			tc.InputText += f.InputDelta
		}
	case frame.KindToolInputAvailable:
		if s.advanceLocked(tc, ToolInputAvailable) {
			tc.Input = f.Input
		}
	case frame.KindToolOutputAvailable:
		if s.advanceLocked(tc, ToolOutputAvailable) {
			tc.Output = f.Output
		}
	case frame.KindToolError:
		if s.advanceLocked(tc, ToolErrored) {
			tc.ErrorText = f.ErrorText
		}
	}

	if f.MessageID != "" {
		s.anchorLocked(f.MessageID, tc.ID)
	}
}

// advanceLocked moves a tool call forward to target if the transition is
// legal. Backward transitions, transitions out of a terminal state, and
// terminal events that skip input-available are ignored defensively: retried
// streams can deliver tool events out of order, and throwing here would turn
// an expected delivery anomaly into a crash.
func (s *State) advanceLocked(tc *ToolCall, target ToolStatus) bool {
	if tc.Status.Terminal() {
		return false
	}
	if statusRank[target] < statusRank[tc.Status] {
		return false
	}
	// A terminal state is reachable only through input-available.
	if target.Terminal() && tc.Status != ToolInputAvailable {
		return false
	}
	// Repeated input-available keeps the first payload.
	if target == ToolInputAvailable && tc.Status == ToolInputAvailable {
		return false
	}
	tc.Status = target
	return true
}

// anchorLocked records a tool id under a message's anchor list. Re-adding
// an existing anchor is a no-op; re-anchoring to a different message moves
// the id so a tool is never listed under two messages. The target message
// need not exist yet; validity is resolved at snapshot time.
func (s *State) anchorLocked(messageID, toolID string) {
	if prev, ok := s.anchorOf[toolID]; ok {
		if prev == messageID {
			return
		}
		s.anchors[prev] = removeID(s.anchors[prev], toolID)
		if len(s.anchors[prev]) == 0 {
			delete(s.anchors, prev)
		}
	}
	s.anchorOf[toolID] = messageID
	s.anchors[messageID] = append(s.anchors[messageID], toolID)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
