// ABOUTME: Tests for the conversation list cache
// ABOUTME: Covers merge-by-id updates, recency order, pagination, and notices

package convlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string        { return &s }
func boolPtr(b bool) *bool           { return &b }
func timePtr(t time.Time) *time.Time { return &t }

func TestCache_AddAndRow(t *testing.T) {
	c := NewCache(nil, nil)

	c.Add(Row{ID: "conv-1", Title: "First"})

	row, ok := c.Row("conv-1")
	require.True(t, ok)
	assert.Equal(t, "First", row.Title)
}

func TestCache_AddMovesToFront(t *testing.T) {
	c := NewCache(nil, nil)

	c.Add(Row{ID: "conv-1", Title: "older"})
	c.Add(Row{ID: "conv-2", Title: "newer"})

	rows := c.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "conv-2", rows[0].ID)
}

func TestCache_UpdateMergesFieldLevel(t *testing.T) {
	c := NewCache(nil, nil)
	c.Add(Row{ID: "conv-1", Title: "Keep me", ActiveAgent: "scribe"})

	// Title-only update must not clobber the agent, and vice versa.
	c.Update("conv-1", Patch{Title: strPtr("Renamed")})
	c.Update("conv-1", Patch{ActiveAgent: strPtr("researcher")})

	row, _ := c.Row("conv-1")
	assert.Equal(t, "Renamed", row.Title)
	assert.Equal(t, "researcher", row.ActiveAgent)
}

func TestCache_UpdateUnknownIDIsNoOp(t *testing.T) {
	c := NewCache(nil, nil)
	c.Update("ghost", Patch{Title: strPtr("x")})
	assert.Empty(t, c.Rows())
}

func TestCache_Remove(t *testing.T) {
	c := NewCache(nil, nil)
	c.Add(Row{ID: "conv-1"})
	c.Add(Row{ID: "conv-2"})

	c.Remove("conv-1")

	rows := c.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "conv-2", rows[0].ID)

	c.Remove("conv-1") // second remove is harmless
}

func TestCache_ApplyPageAppendsWithoutDuplicating(t *testing.T) {
	c := NewCache(nil, nil)
	c.Add(Row{ID: "conv-1", Title: "canonical title"})

	c.ApplyPage([]Row{
		{ID: "conv-1", Title: "stale server copy"},
		{ID: "conv-2", Title: "paged in"},
	}, "cursor-2", true)

	rows := c.Rows()
	require.Len(t, rows, 2)
	row1, _ := c.Row("conv-1")
	assert.Equal(t, "canonical title", row1.Title, "existing row stays canonical")

	cursor, hasMore := c.NextCursor()
	assert.Equal(t, "cursor-2", cursor)
	assert.True(t, hasMore)
}

func TestCache_Touch(t *testing.T) {
	c := NewCache(nil, nil)
	c.Add(Row{ID: "conv-1"})
	c.Add(Row{ID: "conv-2"})

	at := time.Now()
	c.Touch("conv-1", "latest words", at)

	rows := c.Rows()
	assert.Equal(t, "conv-1", rows[0].ID, "touched row moves to front")
	assert.Equal(t, "latest words", rows[0].LastMessagePreview)
	assert.Equal(t, at, rows[0].UpdatedAt)
}

func TestCache_SortRecent(t *testing.T) {
	c := NewCache(nil, nil)
	now := time.Now()
	c.Add(Row{ID: "old", UpdatedAt: now.Add(-time.Hour)})
	c.Add(Row{ID: "new", UpdatedAt: now})
	c.Add(Row{ID: "mid", UpdatedAt: now.Add(-time.Minute)})

	c.SortRecent()

	rows := c.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
}

func TestCache_Notices(t *testing.T) {
	c := NewCache(nil, nil)

	c.AddNotice("n1", "rename failed")
	c.AddNotice("n2", "memory update failed")
	require.Len(t, c.Notices(), 2)

	c.DismissNotice("n1")
	notices := c.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "n2", notices[0].ID)
}

func TestCache_OnChangeFires(t *testing.T) {
	c := NewCache(nil, nil)
	changed := make(chan struct{}, 8)
	c.SetOnChange(func() { changed <- struct{}{} })

	c.Add(Row{ID: "conv-1"})

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("change callback never fired")
	}
}
