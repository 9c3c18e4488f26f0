// ABOUTME: Notification feed fed by billing and activity streams
// ABOUTME: Append-only notifications with dismissal and per-conversation usage totals

package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-client/internal/frame"
)

// BillingEvent is one event on the tenant-wide billing stream.
type BillingEvent struct {
	Kind             string            `json:"kind"` // "usage" or "credit"
	ConversationID   string            `json:"conversation_id,omitempty"`
	Usage            *frame.TokenUsage `json:"usage,omitempty"`
	CreditsRemaining *float64          `json:"credits_remaining,omitempty"`
}

// ActivityEvent is one event on the activity/notifications stream.
type ActivityEvent struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// Notification is one row in the feed.
type Notification struct {
	ID             string
	Kind           string
	Message        string
	ConversationID string
	At             time.Time
}

// Feed accumulates notifications and usage totals.
type Feed struct {
	mu     sync.Mutex
	logger *slog.Logger

	notifications []Notification
	usageByConv   map[string]frame.TokenUsage
	usageTotal    frame.TokenUsage
	credits       float64
	creditsKnown  bool
	onChange      func()
}

// NewFeed creates an empty feed. Pass nil logger for default.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		logger:      logger.With("component", "notify"),
		usageByConv: make(map[string]frame.TokenUsage),
	}
}

// SetOnChange registers a callback fired after every mutation.
func (f *Feed) SetOnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

func (f *Feed) notifyLocked() {
	if f.onChange != nil {
		go f.onChange()
	}
}

// OnBillingEvent consumes one billing stream payload.
func (f *Feed) OnBillingEvent(data string) error {
	var ev BillingEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return fmt.Errorf("parsing billing event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if ev.Usage != nil {
		f.recordUsageLocked(ev.ConversationID, *ev.Usage)
	}
	if ev.CreditsRemaining != nil {
		f.credits = *ev.CreditsRemaining
		f.creditsKnown = true
	}
	f.notifyLocked()
	return nil
}

// OnActivityEvent consumes one activity stream payload and appends a
// notification.
func (f *Feed) OnActivityEvent(data string) error {
	var ev ActivityEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return fmt.Errorf("parsing activity event: %w", err)
	}
	if ev.Message == "" {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := ev.ID
	if id == "" {
		id = uuid.New().String()
	}
	// Replayed activity events keep the feed append-only but not duplicated.
	for _, n := range f.notifications {
		if n.ID == id {
			return nil
		}
	}

	at := time.Now()
	if ev.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, ev.CreatedAt); err == nil {
			at = parsed
		}
	}
	f.notifications = append(f.notifications, Notification{
		ID:             id,
		Kind:           ev.Kind,
		Message:        ev.Message,
		ConversationID: ev.ConversationID,
		At:             at,
	})
	f.notifyLocked()
	return nil
}

// OnError is the fail-open error handler for both streams.
func (f *Feed) OnError(err error) {
	f.logger.Debug("notify stream failed", "error", err)
}

// RecordUsage folds token usage from a final payload or guardrail verdict
// into the running totals.
func (f *Feed) RecordUsage(conversationID string, usage frame.TokenUsage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordUsageLocked(conversationID, usage)
	f.notifyLocked()
}

func (f *Feed) recordUsageLocked(conversationID string, usage frame.TokenUsage) {
	if conversationID != "" {
		u := f.usageByConv[conversationID]
		u.InputTokens += usage.InputTokens
		u.OutputTokens += usage.OutputTokens
		u.TotalTokens += usage.TotalTokens
		f.usageByConv[conversationID] = u
	}
	f.usageTotal.InputTokens += usage.InputTokens
	f.usageTotal.OutputTokens += usage.OutputTokens
	f.usageTotal.TotalTokens += usage.TotalTokens
}

// Notifications returns the feed, oldest first.
func (f *Feed) Notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.notifications...)
}

// Dismiss removes a notification by id.
func (f *Feed) Dismiss(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notifications {
		if n.ID == id {
			f.notifications = append(f.notifications[:i], f.notifications[i+1:]...)
			f.notifyLocked()
			return
		}
	}
}

// Usage returns the accumulated usage for one conversation.
func (f *Feed) Usage(conversationID string) frame.TokenUsage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usageByConv[conversationID]
}

// TotalUsage returns tenant-wide accumulated usage.
func (f *Feed) TotalUsage() frame.TokenUsage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usageTotal
}

// Credits returns the latest credits-remaining figure and whether one has
// been received.
func (f *Feed) Credits() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits, f.creditsKnown
}
