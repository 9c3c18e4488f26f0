// ABOUTME: Conversation summary, history, send, rename, and memory endpoints
// ABOUTME: Cursor-based pagination following the gateway's opaque cursor contract

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/2389/coven-client/internal/conversation"
	"github.com/2389/coven-client/internal/convlist"
	"github.com/2389/coven-client/internal/frame"
)

// Summary is one conversation row as the gateway reports it.
type Summary struct {
	ID                 string                     `json:"id"`
	Title              string                     `json:"title"`
	LastMessagePreview string                     `json:"last_message_preview,omitempty"`
	UpdatedAt          string                     `json:"updated_at,omitempty"`
	ActiveAgent        string                     `json:"active_agent,omitempty"`
	Memory             *convlist.MemoryPreference `json:"memory,omitempty"`
}

// Row converts a Summary into a conversation list row.
func (s *Summary) Row() convlist.Row {
	row := convlist.Row{
		ID:                 s.ID,
		Title:              s.Title,
		LastMessagePreview: s.LastMessagePreview,
		ActiveAgent:        s.ActiveAgent,
	}
	if s.UpdatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, s.UpdatedAt); err == nil {
			row.UpdatedAt = ts
		}
	}
	if s.Memory != nil {
		row.Memory = *s.Memory
	} else {
		row.Memory = convlist.MemoryPreference{Mode: convlist.MemoryInherit}
	}
	return row
}

// SummaryPage is one page of conversation summaries.
type SummaryPage struct {
	Conversations []Summary `json:"conversations"`
	NextCursor    string    `json:"next_cursor,omitempty"`
	HasMore       bool      `json:"has_more"`
}

// ListConversations fetches one page of the conversation list. cursor is
// the opaque token from a previous page, empty for the first page.
func (c *Client) ListConversations(ctx context.Context, cursor string, limit int) (*SummaryPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/conversations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page SummaryPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return &page, nil
}

// SearchConversations runs a server-side search for the given term.
func (c *Client) SearchConversations(ctx context.Context, term string) ([]Summary, error) {
	q := url.Values{}
	q.Set("q", term)

	var page SummaryPage
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations/search?"+q.Encode(), nil, &page); err != nil {
		return nil, fmt.Errorf("searching conversations: %w", err)
	}
	return page.Conversations, nil
}

// RenameConversation sets a conversation title and returns the updated
// summary.
func (c *Client) RenameConversation(ctx context.Context, conversationID, title string) (*Summary, error) {
	body := map[string]string{"title": title}
	var out Summary
	if err := c.doJSON(ctx, http.MethodPatch, "/api/conversations/"+conversationID, body, &out); err != nil {
		return nil, fmt.Errorf("renaming conversation: %w", err)
	}
	return &out, nil
}

// UpdateConversationMemory sets the conversation's memory preference.
func (c *Client) UpdateConversationMemory(ctx context.Context, conversationID string, pref convlist.MemoryPreference) error {
	if err := c.doJSON(ctx, http.MethodPut, "/api/conversations/"+conversationID+"/memory", pref, nil); err != nil {
		return fmt.Errorf("updating conversation memory: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/conversations/"+conversationID, nil, nil); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// historyMessage is one message as the history endpoint reports it.
type historyMessage struct {
	ID          string             `json:"id"`
	Role        string             `json:"role"`
	Kind        string             `json:"kind,omitempty"`
	Content     string             `json:"content"`
	Timestamp   string             `json:"timestamp,omitempty"`
	Attachments []frame.Attachment `json:"attachments,omitempty"`
}

// historyPageResponse is the raw history page payload.
type historyPageResponse struct {
	Messages   []historyMessage `json:"messages"`
	NextCursor string           `json:"next_cursor,omitempty"`
	HasMore    bool             `json:"has_more"`
}

// HistoryDirection selects which side of the cursor a page covers.
type HistoryDirection string

const (
	HistoryBackward HistoryDirection = "backward" // older messages
	HistoryForward  HistoryDirection = "forward"
)

// HistoryPageParams parametrize a history fetch.
type HistoryPageParams struct {
	Cursor    string
	Limit     int
	Direction HistoryDirection
}

// HistoryPage is one decoded page of conversation history.
type HistoryPage struct {
	Messages   []conversation.Message
	NextCursor string
	HasMore    bool
}

// FetchHistoryPage fetches one page of conversation history.
func (c *Client) FetchHistoryPage(ctx context.Context, conversationID string, p HistoryPageParams) (*HistoryPage, error) {
	q := url.Values{}
	if p.Cursor != "" {
		q.Set("cursor", p.Cursor)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Direction != "" {
		q.Set("direction", string(p.Direction))
	}
	path := "/api/conversations/" + conversationID + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var raw historyPageResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}

	page := &HistoryPage{NextCursor: raw.NextCursor, HasMore: raw.HasMore}
	for _, hm := range raw.Messages {
		m := conversation.Message{
			ID:          hm.ID,
			Role:        conversation.Role(hm.Role),
			Kind:        conversation.MessageKind(hm.Kind),
			Content:     hm.Content,
			Attachments: hm.Attachments,
		}
		if m.Kind == "" {
			m.Kind = conversation.MessageKindNormal
		}
		if hm.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339, hm.Timestamp); err == nil {
				m.Timestamp = ts
			}
		}
		page.Messages = append(page.Messages, m)
	}
	return page, nil
}

// SendRequest is the body for submitting a user message.
type SendRequest struct {
	ClientMessageID string             `json:"client_message_id"`
	Content         string             `json:"content"`
	Attachments     []frame.Attachment `json:"attachments,omitempty"`
}

// SendResult is the gateway's acknowledgement of a send.
type SendResult struct {
	MessageID string `json:"message_id"`
}

// SendMessage submits a user message. The client message id lets the
// server echo the optimistic message back under a stable identity.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req SendRequest) (*SendResult, error) {
	var out SendResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/messages", req, &out); err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	return &out, nil
}
