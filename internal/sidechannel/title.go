// ABOUTME: Token-by-token title generation sync with sentinel termination
// ABOUTME: Pending state resolves on first value, timer expiry, error, or close

package sidechannel

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-client/internal/convlist"
)

// TitleSentinel is the token that marks the end of title generation.
const TitleSentinel = "[DONE]"

// DefaultTitleTimeout bounds how long the pending indicator may show while
// waiting for the first title token.
const DefaultTitleTimeout = 5 * time.Second

// Sink is what the syncs need from the conversation list cache.
type Sink interface {
	Update(id string, p convlist.Patch)
}

// TitleSync consumes the title-generation token stream for one conversation.
type TitleSync struct {
	mu     sync.Mutex
	logger *slog.Logger

	conversationID string
	sink           Sink
	timeout        time.Duration

	timer    *time.Timer
	resolved bool
	done     bool
	title    strings.Builder
	applied  string
}

// NewTitleSync creates a sync for one conversation. Zero timeout selects
// the default. Pass nil logger for default.
func NewTitleSync(conversationID string, sink Sink, timeout time.Duration, logger *slog.Logger) *TitleSync {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTitleTimeout
	}
	return &TitleSync{
		logger:         logger.With("component", "titlesync", "conversation_id", conversationID),
		conversationID: conversationID,
		sink:           sink,
		timeout:        timeout,
	}
}

// Start marks the conversation title as pending and arms the wall-clock
// resolution timer. The timer guarantees the pending indicator resolves
// even if the stream never emits a single token.
func (t *TitleSync) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := true
	t.sink.Update(t.conversationID, convlist.Patch{DisplayNamePending: &pending})
	t.timer = time.AfterFunc(t.timeout, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.resolveLocked()
	})
}

// OnChunk consumes one title token. The first non-empty changed value
// resolves the pending state; subsequent tokens keep extending the title
// until the sentinel arrives.
func (t *TitleSync) OnChunk(chunk string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}
	if chunk == TitleSentinel {
		t.done = true
		t.resolveLocked()
		return
	}

	t.title.WriteString(chunk)
	current := strings.TrimSpace(t.title.String())
	if current == "" || current == t.applied {
		return
	}

	t.resolveLocked()
	t.applied = current
	t.sink.Update(t.conversationID, convlist.Patch{Title: &current})
}

// OnError resolves the pending state without a value. Fail open: the error
// is logged at debug and never propagated to chat state.
func (t *TitleSync) OnError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger.Debug("title stream failed", "error", err)
	t.resolveLocked()
}

// Close tears the sync down, resolving any outstanding pending state so the
// indicator cannot stick after a conversation switch or unmount.
func (t *TitleSync) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.resolveLocked()
}

// resolveLocked clears the pending indicator exactly once. Must hold mu.
func (t *TitleSync) resolveLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.resolved {
		return
	}
	t.resolved = true
	pending := false
	t.sink.Update(t.conversationID, convlist.Patch{DisplayNamePending: &pending})
}
