// ABOUTME: SSE stream openers for chat, title, metadata, billing, and activity
// ABOUTME: Each returns an io.ReadCloser suitable for the session manager

package api

import (
	"context"
	"io"
	"net/url"
	"strconv"
)

// OpenChatStream opens the primary event stream for a conversation.
// lastSequence, when positive, asks the server to resume after that
// sequence number.
func (c *Client) OpenChatStream(ctx context.Context, conversationID string, lastSequence uint64) (io.ReadCloser, error) {
	var q url.Values
	if lastSequence > 0 {
		q = url.Values{}
		q.Set("after", strconv.FormatUint(lastSequence, 10))
	}
	return c.openStream(ctx, "/api/conversations/"+conversationID+"/events", q)
}

// OpenTitleStream opens the title generation side channel.
func (c *Client) OpenTitleStream(ctx context.Context, conversationID string) (io.ReadCloser, error) {
	return c.openStream(ctx, "/api/conversations/"+conversationID+"/title-stream", nil)
}

// OpenMetadataStream opens the metadata side channel.
func (c *Client) OpenMetadataStream(ctx context.Context, conversationID string) (io.ReadCloser, error) {
	return c.openStream(ctx, "/api/conversations/"+conversationID+"/metadata-stream", nil)
}

// OpenBillingStream opens the account-wide billing event stream.
func (c *Client) OpenBillingStream(ctx context.Context) (io.ReadCloser, error) {
	return c.openStream(ctx, "/api/billing/events", nil)
}

// OpenActivityStream opens the account-wide activity event stream.
func (c *Client) OpenActivityStream(ctx context.Context) (io.ReadCloser, error) {
	return c.openStream(ctx, "/api/activity/events", nil)
}
