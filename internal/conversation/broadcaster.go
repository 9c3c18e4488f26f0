// ABOUTME: In-memory fan-out of state snapshots to render observers
// ABOUTME: Publishes an immutable Snapshot to all subscribers of a conversation

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber. A full
	// buffer drops intermediate snapshots: observers only ever need the
	// latest one.
	subscriberBufferSize = 16
)

// SnapshotBroadcaster provides in-memory pub/sub for state snapshots.
// Renderers subscribe for a conversation id and receive a fresh Snapshot
// after every reducer application, without polling the State.
type SnapshotBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Snapshot // conversationID -> subID -> ch
	logger      *slog.Logger
}

// NewSnapshotBroadcaster creates a broadcaster. Pass nil logger for default.
func NewSnapshotBroadcaster(logger *slog.Logger) *SnapshotBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotBroadcaster{
		subscribers: make(map[string]map[string]chan *Snapshot),
		logger:      logger.With("component", "snapshots"),
	}
}

// Subscribe registers an observer for snapshots of the given conversation.
// Returns a receive channel and a subscription id for later unsubscription.
// The subscription is automatically cleaned up when ctx is cancelled.
func (b *SnapshotBroadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan *Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan *Snapshot, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan *Snapshot)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish sends a snapshot to all subscribers of the conversation.
// Non-blocking: slow subscribers miss intermediate snapshots.
func (b *SnapshotBroadcaster) Publish(conversationID string, snap *Snapshot) {
	// Sends stay under the read lock: they never block, and Unsubscribe
	// needs the write lock to close a channel, so no send can race a close.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[conversationID] {
		select {
		case ch <- snap:
		default:
			// Drain one stale snapshot and retry so the subscriber always
			// converges on the latest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *SnapshotBroadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *SnapshotBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}
}
