// ABOUTME: End-to-end engine tests against a fake gateway over httptest
// ABOUTME: Covers streaming reconciliation, sends, switching, and rollbacks

package engine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-client/internal/api"
	"github.com/2389/coven-client/internal/conversation"
	"github.com/2389/coven-client/internal/convlist"
)

// sseBody renders data-only SSE events from raw JSON payloads.
func sseBody(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return b.String()
}

func frameJSON(t *testing.T, fields map[string]any) string {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(data)
}

// fakeGateway is a minimal in-process gateway. Handlers are registered per
// method+path; unregistered side channels return empty streams.
type fakeGateway struct {
	mux *http.ServeMux
	srv *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{mux: http.NewServeMux()}
	g.srv = httptest.NewServer(g.mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) client() *api.Client {
	return api.New(g.srv.URL, "test-token", nil)
}

func (g *fakeGateway) handle(pattern string, fn http.HandlerFunc) {
	g.mux.HandleFunc(pattern, fn)
}

func (g *fakeGateway) emptyStream(pattern string) {
	g.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	})
}

func (g *fakeGateway) history(conversationID string, messages ...map[string]any) {
	g.mux.HandleFunc("GET /api/conversations/"+conversationID+"/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"messages": messages, "has_more": false})
	})
}

func (g *fakeGateway) sideChannels(conversationID string) {
	g.emptyStream("GET /api/conversations/" + conversationID + "/title-stream")
	g.emptyStream("GET /api/conversations/" + conversationID + "/metadata-stream")
}

func TestEngine_StreamsDeltasIntoSnapshot(t *testing.T) {
	g := newFakeGateway(t)
	g.history("conv-1", map[string]any{"id": "m1", "role": "user", "content": "earlier question"})
	g.sideChannels("conv-1")
	g.handle("GET /api/conversations/conv-1/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			frameJSON(t, map[string]any{
				"event_id": "e1", "stream_id": "s1", "sequence_number": 1,
				"kind": "lifecycle", "status": "in_progress",
			}),
			frameJSON(t, map[string]any{
				"event_id": "e2", "stream_id": "s1", "sequence_number": 2,
				"kind": "message.delta", "message_id": "m2", "delta": "Hel",
			}),
			frameJSON(t, map[string]any{
				"event_id": "e2-dup", "stream_id": "s1", "sequence_number": 2,
				"kind": "message.delta", "message_id": "m2", "delta": "Hel",
			}),
			frameJSON(t, map[string]any{
				"event_id": "e3", "stream_id": "s1", "sequence_number": 3,
				"kind": "message.delta", "message_id": "m2", "delta": "lo",
			}),
			frameJSON(t, map[string]any{
				"event_id": "e4", "stream_id": "s1", "sequence_number": 4,
				"kind": "final", "final": map[string]any{
					"status": "completed", "response_text": "Hello",
					"usage": map[string]any{"input_tokens": 10, "output_tokens": 2, "total_tokens": 12},
				},
			}),
			frameJSON(t, map[string]any{
				"event_id": "e5", "stream_id": "s1", "sequence_number": 5,
				"kind": "lifecycle", "status": "completed",
			}),
		))
	})

	e := New(Options{API: g.client()})
	defer e.Close()
	e.OpenConversation(t.Context(), "conv-1")

	require.Eventually(t, func() bool {
		snap := e.Snapshot()
		return snap.Status == conversation.StatusCompleted && len(snap.Messages) == 2
	}, 2*time.Second, 10*time.Millisecond)

	snap := e.Snapshot()
	assert.Equal(t, "conv-1", snap.ConversationID)
	assert.Equal(t, "earlier question", snap.Messages[0].Content)

	// The duplicate sequence was dropped; "Hel"+"lo" then the authoritative
	// final text.
	assert.Equal(t, "Hello", snap.Messages[1].Content)
	assert.False(t, snap.Messages[1].Streaming)

	usage := e.Feed().Usage("conv-1")
	assert.Equal(t, int64(12), usage.TotalTokens)
}

func TestEngine_HistoryFailureDegradesToBanner(t *testing.T) {
	g := newFakeGateway(t)
	g.handle("GET /api/conversations/conv-1/messages", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	g.sideChannels("conv-1")
	g.emptyStream("GET /api/conversations/conv-1/events")

	e := New(Options{API: g.client()})
	defer e.Close()
	e.OpenConversation(t.Context(), "conv-1")

	snap := e.Snapshot()
	assert.NotEmpty(t, snap.HistoryError)
	assert.Empty(t, snap.Messages)
}

func TestEngine_SendConfirmsOptimisticMessage(t *testing.T) {
	g := newFakeGateway(t)
	g.history("conv-1")
	g.sideChannels("conv-1")
	g.emptyStream("GET /api/conversations/conv-1/events")
	g.handle("POST /api/conversations/conv-1/messages", func(w http.ResponseWriter, r *http.Request) {
		var req api.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, strings.HasPrefix(req.ClientMessageID, "local-"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.SendResult{MessageID: "srv-msg-1"})
	})

	e := New(Options{API: g.client()})
	defer e.Close()
	e.OpenConversation(t.Context(), "conv-1")

	require.NoError(t, e.Send(t.Context(), "ship it", nil))

	snap := e.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "srv-msg-1", snap.Messages[0].ID)
	assert.Equal(t, "ship it", snap.Messages[0].Content)
	assert.False(t, snap.Messages[0].Pending)
}

func TestEngine_SendFailureRetainsMessageAndRetryRecovers(t *testing.T) {
	g := newFakeGateway(t)
	g.history("conv-1")
	g.sideChannels("conv-1")
	g.emptyStream("GET /api/conversations/conv-1/events")

	var mu sync.Mutex
	failing := true
	g.handle("POST /api/conversations/conv-1/messages", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := failing
		mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.SendResult{MessageID: "srv-msg-2"})
	})

	e := New(Options{API: g.client()})
	defer e.Close()
	e.OpenConversation(t.Context(), "conv-1")

	require.Error(t, e.Send(t.Context(), "try me", nil))

	snap := e.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.True(t, snap.Messages[0].Pending)
	assert.NotEmpty(t, snap.ErrorMessage)
	localID := snap.Messages[0].ID

	mu.Lock()
	failing = false
	mu.Unlock()

	require.NoError(t, e.Retry(t.Context(), localID))

	snap = e.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "srv-msg-2", snap.Messages[0].ID)
	assert.False(t, snap.Messages[0].Pending)
	assert.Empty(t, snap.ErrorMessage)
}

func TestEngine_SwitchingLeavesOnlyLatestConversation(t *testing.T) {
	g := newFakeGateway(t)
	for _, id := range []string{"conv-a", "conv-b", "conv-c"} {
		g.history(id)
		g.sideChannels(id)
	}

	// Streams for a and b hold their frame back until released, by which
	// time their sessions are closed and the frame must be discarded.
	release := make(chan struct{})
	for _, id := range []string{"conv-a", "conv-b"} {
		g.handle("GET /api/conversations/"+id+"/events", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
			fmt.Fprint(w, sseBody(frameJSON(t, map[string]any{
				"event_id": "stale", "stream_id": "s-" + id, "sequence_number": 1,
				"kind": "message.delta", "conversation_id": id,
				"message_id": "stale-" + id, "delta": "stale text",
			})))
		})
	}
	g.handle("GET /api/conversations/conv-c/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(frameJSON(t, map[string]any{
			"event_id": "c1", "stream_id": "s-c", "sequence_number": 1,
			"kind": "message.delta", "conversation_id": "conv-c",
			"message_id": "mc", "delta": "fresh",
		})))
	})

	e := New(Options{API: g.client()})
	defer e.Close()

	e.OpenConversation(t.Context(), "conv-a")
	e.OpenConversation(t.Context(), "conv-b")
	e.OpenConversation(t.Context(), "conv-c")

	require.Eventually(t, func() bool {
		return len(e.Snapshot().Messages) == 1
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	time.Sleep(100 * time.Millisecond)

	snap := e.Snapshot()
	assert.Equal(t, "conv-c", snap.ConversationID)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "fresh", snap.Messages[0].Content)
}

func TestEngine_RenameRollsBackOnServerError(t *testing.T) {
	g := newFakeGateway(t)
	g.handle("PATCH /api/conversations/conv-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "title locked"})
	})

	e := New(Options{API: g.client()})
	defer e.Close()
	e.List().Add(convlist.Row{ID: "conv-1", Title: "Original"})

	err := e.Rename(t.Context(), "conv-1", "Renamed")
	require.Error(t, err)

	row, ok := e.List().Row("conv-1")
	require.True(t, ok)
	assert.Equal(t, "Original", row.Title)
	require.NotEmpty(t, e.List().Notices())
	assert.Contains(t, e.List().Notices()[0].Message, "rename failed")
}

func TestEngine_SetMemoryCommitsOnSuccess(t *testing.T) {
	g := newFakeGateway(t)
	var gotPref convlist.MemoryPreference
	g.handle("PUT /api/conversations/conv-1/memory", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPref))
		w.WriteHeader(http.StatusNoContent)
	})

	e := New(Options{API: g.client()})
	defer e.Close()
	e.List().Add(convlist.Row{ID: "conv-1", Title: "Budget"})

	require.NoError(t, e.SetMemory(t.Context(), "conv-1", convlist.MemoryPreference{Mode: convlist.MemoryTrim}))

	assert.Equal(t, convlist.MemoryTrim, gotPref.Mode)
	row, ok := e.List().Row("conv-1")
	require.True(t, ok)
	assert.Equal(t, convlist.MemoryTrim, row.Memory.Mode)
	assert.Empty(t, e.List().Notices())
}

func TestEngine_RefreshListPopulatesCache(t *testing.T) {
	g := newFakeGateway(t)
	g.handle("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.SummaryPage{
			Conversations: []api.Summary{
				{ID: "c1", Title: "First"},
				{ID: "c2", Title: "Second"},
			},
			NextCursor: "tok",
			HasMore:    true,
		})
	})

	e := New(Options{API: g.client()})
	defer e.Close()

	require.NoError(t, e.RefreshList(t.Context()))

	rows := e.List().Rows()
	require.Len(t, rows, 2)
	cursor, ok := e.List().NextCursor()
	require.True(t, ok)
	assert.Equal(t, "tok", cursor)
}

func TestEngine_SearchDebounceOptionReachesCache(t *testing.T) {
	g := newFakeGateway(t)
	g.handle("GET /api/conversations/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.SummaryPage{
			Conversations: []api.Summary{{ID: "c1", Title: "Billing"}},
		})
	})

	e := New(Options{API: g.client(), SearchDebounce: 20 * time.Millisecond})
	defer e.Close()

	e.List().SetSearchTerm("bil")

	// Results must land well before the 250ms default would even fire,
	// proving the configured delay is the one the cache uses.
	require.Eventually(t, func() bool {
		return e.List().View() == convlist.ViewSearchResults
	}, 150*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []string{"c1"}, rowIDs(e.List().Rows()))
}

func TestEngine_OpenConversationLeavesSearchView(t *testing.T) {
	g := newFakeGateway(t)
	g.history("conv-1")
	g.sideChannels("conv-1")
	g.emptyStream("GET /api/conversations/conv-1/events")

	e := New(Options{API: g.client()})
	defer e.Close()
	e.List().Add(convlist.Row{ID: "conv-1", Title: "Budget"})

	e.List().SetSearchTerm("bud")
	require.Equal(t, convlist.ViewSearching, e.List().View())

	e.OpenConversation(t.Context(), "conv-1")

	assert.Equal(t, convlist.ViewRecent, e.List().View())
	assert.Empty(t, e.List().SearchTerm())
}

func TestEngine_RenameMergesServerSummaryOnSuccess(t *testing.T) {
	g := newFakeGateway(t)
	g.handle("PATCH /api/conversations/conv-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.Summary{
			ID:        "conv-1",
			Title:     "Quarterly Report",
			UpdatedAt: "2026-08-29T12:00:00Z",
		})
	})

	e := New(Options{API: g.client()})
	defer e.Close()
	e.List().Add(convlist.Row{ID: "conv-1", Title: "Original"})

	require.NoError(t, e.Rename(t.Context(), "conv-1", "  Quarterly Report  "))

	// The server normalized the submitted title; the row carries the
	// canonical form and the server's updated_at.
	row, ok := e.List().Row("conv-1")
	require.True(t, ok)
	assert.Equal(t, "Quarterly Report", row.Title)
	assert.Equal(t, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC), row.UpdatedAt)
}

func rowIDs(rows []convlist.Row) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids
}
