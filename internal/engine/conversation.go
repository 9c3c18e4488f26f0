// ABOUTME: Active conversation lifecycle: open, send, retry, older history
// ABOUTME: Routes decoded frames through the ordering gate into state

package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/2389/coven-client/internal/api"
	"github.com/2389/coven-client/internal/convlist"
	"github.com/2389/coven-client/internal/frame"
	"github.com/2389/coven-client/internal/session"
	"github.com/2389/coven-client/internal/sidechannel"
)

// OpenConversation makes the given conversation active. The previous
// conversation's chat, title, and metadata slots are closed first, so a
// rapid A to B to C switch leaves exactly C's subscriptions open. History
// seeds the message list; a failed fetch degrades into a history banner
// while the live stream still opens.
func (e *Engine) OpenConversation(ctx context.Context, conversationID string) {
	e.list.LeaveSearch()

	e.mu.Lock()
	if e.title != nil {
		e.title.Close()
		e.title = nil
	}
	if e.metadata != nil {
		e.metadata.Close()
		e.metadata = nil
	}
	e.historyCursor, e.historyMore = "", false
	e.mu.Unlock()

	e.sessions.CloseSlot(session.SlotChat)
	e.sessions.CloseSlot(session.SlotTitle)
	e.sessions.CloseSlot(session.SlotMetadata)

	e.state.Reset(conversationID)
	e.gate.Reset()

	page, err := e.api.FetchHistoryPage(ctx, conversationID, api.HistoryPageParams{
		Limit:     e.historyPageSize,
		Direction: api.HistoryBackward,
	})
	if err != nil {
		e.logger.Warn("history fetch failed", "conversation_id", conversationID, "error", err)
		e.state.SetHistoryError("could not load earlier messages")
	} else {
		e.state.SeedHistory(page.Messages)
		e.mu.Lock()
		e.historyCursor, e.historyMore = page.NextCursor, page.HasMore
		e.mu.Unlock()
	}

	e.sessions.Open(ctx, session.SlotChat, func(ctx context.Context) (io.ReadCloser, error) {
		return e.api.OpenChatStream(ctx, conversationID, 0)
	}, session.Handlers{
		OnEvent: func(ev session.Event) { e.onChatEvent(conversationID, ev) },
		OnError: func(err error) { e.onChatError(conversationID, err) },
	})

	title := sidechannel.NewTitleSync(conversationID, e.list, e.titleTimeout, e.logger)
	title.Start()
	e.sessions.Open(ctx, session.SlotTitle, func(ctx context.Context) (io.ReadCloser, error) {
		return e.api.OpenTitleStream(ctx, conversationID)
	}, session.Handlers{
		OnEvent: func(ev session.Event) { title.OnChunk(ev.Data) },
		OnError: title.OnError,
	})

	metadata := sidechannel.NewMetadataSync(conversationID, e.list, e.metadataTimeout, e.logger)
	metadata.Start()
	e.sessions.Open(ctx, session.SlotMetadata, func(ctx context.Context) (io.ReadCloser, error) {
		return e.api.OpenMetadataStream(ctx, conversationID)
	}, session.Handlers{
		OnEvent: func(ev session.Event) {
			if err := metadata.OnEvent(ev.Data); err != nil {
				e.logger.Debug("dropping malformed metadata event", "error", err)
			}
		},
		OnError: metadata.OnError,
	})

	e.mu.Lock()
	e.title, e.metadata = title, metadata
	e.mu.Unlock()

	e.publish(conversationID)
}

// onChatEvent decodes and applies one frame from the active stream.
func (e *Engine) onChatEvent(conversationID string, ev session.Event) {
	f, err := frame.Decode([]byte(ev.Data))
	if err != nil {
		e.logger.Debug("dropping malformed frame", "error", err)
		return
	}
	if f.ConversationID != "" && f.ConversationID != conversationID {
		e.logger.Debug("dropping frame for other conversation",
			"frame_conversation_id", f.ConversationID)
		return
	}
	if !e.gate.Admit(f) {
		return
	}

	// ApplyFor rechecks the conversation identity under the state mutex: a
	// handler that slipped past the closed flag during a switch drops its
	// frame here instead of writing into the new conversation.
	if !e.state.ApplyFor(conversationID, f) {
		return
	}

	switch {
	case f.Kind == frame.KindFinal && f.Final != nil:
		if f.Final.Usage != nil {
			e.feed.RecordUsage(conversationID, *f.Final.Usage)
		}
		if f.Final.ResponseText != "" {
			preview := convlist.PreviewText(f.Final.ResponseText, previewMaxLen)
			e.list.Touch(conversationID, preview, time.Now())
		}
	case f.Kind == frame.KindGuardrailResult && f.Guardrail != nil:
		if f.Guardrail.TokenUsage != nil {
			e.feed.RecordUsage(conversationID, *f.Guardrail.TokenUsage)
		}
	}

	e.publish(conversationID)
}

// onChatError surfaces a stream failure on the conversation. Recovery is
// explicit: the user reopens or retries, nothing reconnects automatically.
func (e *Engine) onChatError(conversationID string, err error) {
	e.logger.Warn("chat stream failed", "conversation_id", conversationID, "error", err)
	if !e.state.SetErrorFor(conversationID, fmt.Sprintf("stream disconnected: %v", err)) {
		return
	}
	e.publish(conversationID)
}

// Send submits a user message. The message appears immediately as pending;
// a failed send keeps it in place with an error banner so Retry can resend.
func (e *Engine) Send(ctx context.Context, content string, attachments []frame.Attachment) error {
	conversationID := e.state.ConversationID()
	msg := e.state.AppendLocalUser(content, attachments)
	e.publish(conversationID)

	res, err := e.api.SendMessage(ctx, conversationID, api.SendRequest{
		ClientMessageID: msg.ID,
		Content:         content,
		Attachments:     attachments,
	})
	if err != nil {
		e.state.MarkSendFailed(msg.ID, fmt.Sprintf("message not sent: %v", err))
		e.publish(conversationID)
		return fmt.Errorf("sending message: %w", err)
	}

	e.state.ConfirmLocalSend(msg.ID, res.MessageID)
	e.list.Touch(conversationID, convlist.PreviewText(content, previewMaxLen), time.Now())
	e.publish(conversationID)
	return nil
}

// Retry resends a message whose send previously failed. The message keeps
// its place in the list; only its pending and error state change.
func (e *Engine) Retry(ctx context.Context, messageID string) error {
	conversationID := e.state.ConversationID()
	msg, ok := e.state.Snapshot().Message(messageID)
	if !ok {
		return fmt.Errorf("retry: message %s not found", messageID)
	}

	e.state.ClearErrors()
	e.publish(conversationID)

	res, err := e.api.SendMessage(ctx, conversationID, api.SendRequest{
		ClientMessageID: msg.ID,
		Content:         msg.Content,
		Attachments:     msg.Attachments,
	})
	if err != nil {
		e.state.MarkSendFailed(msg.ID, fmt.Sprintf("message not sent: %v", err))
		e.publish(conversationID)
		return fmt.Errorf("retrying message: %w", err)
	}

	e.state.ConfirmLocalSend(msg.ID, res.MessageID)
	e.publish(conversationID)
	return nil
}

// LoadOlder prepends the next older page of history. A failed fetch sets
// the history banner and leaves the cursor unchanged so the user can try
// again.
func (e *Engine) LoadOlder(ctx context.Context) error {
	conversationID := e.state.ConversationID()

	e.mu.Lock()
	cursor, more := e.historyCursor, e.historyMore
	e.mu.Unlock()
	if !more {
		return nil
	}

	page, err := e.api.FetchHistoryPage(ctx, conversationID, api.HistoryPageParams{
		Cursor:    cursor,
		Limit:     e.historyPageSize,
		Direction: api.HistoryBackward,
	})
	if err != nil {
		e.state.SetHistoryError("could not load earlier messages")
		e.publish(conversationID)
		return fmt.Errorf("loading older messages: %w", err)
	}

	e.state.PrependHistory(page.Messages)
	e.mu.Lock()
	e.historyCursor, e.historyMore = page.NextCursor, page.HasMore
	e.mu.Unlock()
	e.publish(conversationID)
	return nil
}
