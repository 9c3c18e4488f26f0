// ABOUTME: Stream session manager with slot-scoped handles and idempotent close
// ABOUTME: Parses SSE byte streams and dispatches events behind a closed-flag gate

package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Logical slots. At most one handle is open per slot; the set below is
// every stream one active conversation context can hold at once.
const (
	SlotChat     = "chat"
	SlotTitle    = "title"
	SlotMetadata = "metadata"
	SlotBilling  = "billing"
	SlotActivity = "activity"
)

// maxEventSize bounds a single SSE event payload.
const maxEventSize = 1 << 20

// Event is one parsed server-sent event: an optional event type plus the
// joined data payload.
type Event struct {
	Type string
	Data string
}

// Handlers receives session callbacks. Either handler may be nil.
// Handlers are never invoked after the owning handle is closed.
type Handlers struct {
	OnEvent func(Event)
	OnError func(error)
}

// OpenFunc opens the underlying transport stream. The returned reader is the
// raw SSE byte stream; the session owns closing it.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// Handle is one open subscription. Close is idempotent and safe to call
// from any goroutine, including from inside a handler.
type Handle struct {
	slot   string
	cancel context.CancelFunc
	closed atomic.Bool
	done   chan struct{}
}

// Close tears the session down. After Close returns, no further handler
// invocations occur for this session: the closed flag is checked before
// each dispatch, so buffered frames delivered by the transport afterwards
// are discarded.
func (h *Handle) Close() {
	if h == nil || h.closed.Swap(true) {
		return
	}
	h.cancel()
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	return h != nil && h.closed.Load()
}

// Done is closed when the reader goroutine has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// dispatch runs fn unless the handle is closed. This is the single gate all
// callbacks pass through.
func (h *Handle) dispatch(fn func()) {
	if fn == nil || h.closed.Load() {
		return
	}
	fn()
}

// Manager opens and replaces stream subscriptions per logical slot.
type Manager struct {
	mu     sync.Mutex
	slots  map[string]*Handle
	logger *slog.Logger
}

// NewManager creates a session manager. Pass nil logger for default.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		slots:  make(map[string]*Handle),
		logger: logger.With("component", "session"),
	}
}

// Open starts a subscription in the given slot, closing any prior handle in
// that slot first so re-opening can never leak a session. The handle is
// live when Open returns; transport open failures arrive via OnError.
func (m *Manager) Open(ctx context.Context, slot string, open OpenFunc, h Handlers) *Handle {
	streamCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		slot:   slot,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if prev := m.slots[slot]; prev != nil {
		prev.Close()
	}
	m.slots[slot] = handle
	m.mu.Unlock()

	m.logger.Debug("session opened", "slot", slot)

	go m.read(streamCtx, handle, open, h)
	return handle
}

// CloseSlot closes the handle currently occupying a slot, if any.
func (m *Manager) CloseSlot(slot string) {
	m.mu.Lock()
	handle := m.slots[slot]
	delete(m.slots, slot)
	m.mu.Unlock()
	handle.Close()
}

// CloseAll closes every open slot. Used on conversation switch and engine
// shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.slots))
	for slot, h := range m.slots {
		handles = append(handles, h)
		delete(m.slots, slot)
	}
	m.mu.Unlock()
	for _, h := range handles {
		h.Close()
	}
}

// read opens the transport and pumps parsed events into the handlers until
// the stream ends, fails, or the handle is closed.
func (m *Manager) read(ctx context.Context, h *Handle, open OpenFunc, handlers Handlers) {
	defer close(h.done)

	body, err := open(ctx)
	if err != nil {
		if !isCancellation(ctx, err) {
			h.dispatch(func() {
				if handlers.OnError != nil {
					handlers.OnError(err)
				}
			})
		}
		return
	}
	defer body.Close()

	if err := scanEvents(ctx, body, func(ev Event) {
		h.dispatch(func() {
			if handlers.OnEvent != nil {
				handlers.OnEvent(ev)
			}
		})
	}); err != nil && !isCancellation(ctx, err) {
		h.dispatch(func() {
			if handlers.OnError != nil {
				handlers.OnError(err)
			}
		})
		return
	}

	m.logger.Debug("session stream ended", "slot", h.slot)
}

// isCancellation reports whether err is the expected result of tearing the
// session down rather than a real transport failure.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe)
}

// scanEvents parses an SSE byte stream. An empty line terminates an event;
// multiple data: lines are joined with newlines per the SSE spec.
func scanEvents(ctx context.Context, body io.Reader, emit func(Event)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				emit(Event{Type: eventType, Data: strings.Join(dataLines, "\n")})
			}
			eventType = ""
			dataLines = nil
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			continue
		}
		// Comment lines (":keepalive") and unknown fields are ignored.
	}

	// A final event without a trailing blank line still counts.
	if len(dataLines) > 0 {
		emit(Event{Type: eventType, Data: strings.Join(dataLines, "\n")})
	}

	return scanner.Err()
}
