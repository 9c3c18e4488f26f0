// ABOUTME: Tests for the snapshot fan-out broadcaster
// ABOUTME: Covers subscribe, publish, latest-wins delivery, and unsubscription

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotBroadcaster_SubscriberReceivesSnapshot(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "conv-1")
	b.Publish("conv-1", &Snapshot{ConversationID: "conv-1", Status: StatusInProgress})

	select {
	case snap := <-ch:
		assert.Equal(t, "conv-1", snap.ConversationID)
		assert.Equal(t, StatusInProgress, snap.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestSnapshotBroadcaster_ConversationsAreIsolated(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "conv-1")
	ch2, _ := b.Subscribe(t.Context(), "conv-2")

	b.Publish("conv-1", &Snapshot{ConversationID: "conv-1"})

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("conv-1 subscriber timed out")
	}
	select {
	case <-ch2:
		t.Fatal("conv-2 subscriber must not receive conv-1 snapshots")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshotBroadcaster_SlowSubscriberConvergesOnLatest(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "conv-1")

	// Overflow the buffer without draining.
	for i := 0; i < subscriberBufferSize+8; i++ {
		b.Publish("conv-1", &Snapshot{ConversationID: "conv-1", ReasoningText: "stale"})
	}
	b.Publish("conv-1", &Snapshot{ConversationID: "conv-1", ReasoningText: "latest"})

	var last *Snapshot
	for {
		select {
		case snap := <-ch:
			last = snap
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}

	assert.NotNil(t, last)
	assert.Equal(t, "latest", last.ReasoningText, "latest snapshot always deliverable")
}

func TestSnapshotBroadcaster_Unsubscribe(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context(), "conv-1")
	b.Unsubscribe("conv-1", subID)

	_, open := <-ch
	assert.False(t, open, "channel closed after unsubscribe")

	// Publishing afterwards must not panic.
	b.Publish("conv-1", &Snapshot{ConversationID: "conv-1"})
}
