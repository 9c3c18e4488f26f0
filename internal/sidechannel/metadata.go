// ABOUTME: Structured metadata stream sync emitting display_name snapshots
// ABOUTME: Same fail-open pending contract as title sync, tighter timeout

package sidechannel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-client/internal/convlist"
)

// DefaultMetadataTimeout bounds the pending window for the metadata stream.
// Metadata snapshots arrive fast or not at all, so this is tighter than the
// title timeout.
const DefaultMetadataTimeout = 1800 * time.Millisecond

// metadataEvent is one structured metadata snapshot from the stream.
type metadataEvent struct {
	Data struct {
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

// MetadataSync consumes the structured metadata stream for one conversation.
type MetadataSync struct {
	mu     sync.Mutex
	logger *slog.Logger

	conversationID string
	sink           Sink
	timeout        time.Duration

	timer    *time.Timer
	resolved bool
	closed   bool
	applied  string
}

// NewMetadataSync creates a sync for one conversation. Zero timeout selects
// the default. Pass nil logger for default.
func NewMetadataSync(conversationID string, sink Sink, timeout time.Duration, logger *slog.Logger) *MetadataSync {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultMetadataTimeout
	}
	return &MetadataSync{
		logger:         logger.With("component", "metasync", "conversation_id", conversationID),
		conversationID: conversationID,
		sink:           sink,
		timeout:        timeout,
	}
}

// Start marks the display name as pending and arms the wall-clock timer.
func (m *MetadataSync) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := true
	m.sink.Update(m.conversationID, convlist.Patch{DisplayNamePending: &pending})
	m.timer = time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.resolveLocked()
	})
}

// OnEvent consumes one metadata snapshot payload. Application is
// idempotent: re-delivering the same display name is a no-op.
func (m *MetadataSync) OnEvent(data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	var ev metadataEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return fmt.Errorf("parsing metadata event: %w", err)
	}

	name := strings.TrimSpace(ev.Data.DisplayName)
	if name == "" || name == m.applied {
		return nil
	}

	m.resolveLocked()
	m.applied = name
	m.sink.Update(m.conversationID, convlist.Patch{Title: &name})
	return nil
}

// OnError resolves the pending state without a value. Fail open.
func (m *MetadataSync) OnError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Debug("metadata stream failed", "error", err)
	m.resolveLocked()
}

// Close tears the sync down, resolving any outstanding pending state.
func (m *MetadataSync) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.resolveLocked()
}

// resolveLocked clears the pending indicator exactly once. Must hold mu.
func (m *MetadataSync) resolveLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.resolved {
		return
	}
	m.resolved = true
	pending := false
	m.sink.Update(m.conversationID, convlist.Patch{DisplayNamePending: &pending})
}
