// ABOUTME: Conversation list cache with field-level merge-by-id updates
// ABOUTME: Single source of truth for sidebar rows, pagination, and view state

package convlist

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryMode selects how conversation memory is carried between turns.
type MemoryMode string

const (
	MemoryInherit   MemoryMode = "inherit"
	MemoryNone      MemoryMode = "none"
	MemoryTrim      MemoryMode = "trim"
	MemorySummarize MemoryMode = "summarize"
	MemoryCompact   MemoryMode = "compact"
)

// MemoryPreference is the per-conversation memory setting. It is client-local
// until the backend confirms; on confirmation failure it rolls back to the
// prior value.
type MemoryPreference struct {
	Mode            MemoryMode `json:"mode"`
	MemoryInjection *bool      `json:"memory_injection,omitempty"`
}

// Row is one conversation summary. A given id maps to at most one canonical
// row in the cache.
type Row struct {
	ID                 string
	Title              string
	DisplayNamePending bool
	LastMessagePreview string
	UpdatedAt          time.Time
	ActiveAgent        string
	Memory             MemoryPreference
}

// Patch is a field-level update. Nil fields are left untouched, which is
// what keeps concurrent unrelated writes from clobbering each other.
type Patch struct {
	Title              *string
	DisplayNamePending *bool
	LastMessagePreview *string
	UpdatedAt          *time.Time
	ActiveAgent        *string
	Memory             *MemoryPreference
}

// ViewMode is the sidebar view state.
type ViewMode string

const (
	ViewRecent        ViewMode = "recent"
	ViewSearching     ViewMode = "searching"
	ViewSearchResults ViewMode = "searchResults"
)

// Notice is a dismissible, user-visible notification (e.g. a failed rename).
type Notice struct {
	ID      string
	Message string
	At      time.Time
}

// Cache holds conversation summary rows and the sidebar view state.
type Cache struct {
	mu     sync.Mutex
	logger *slog.Logger

	rows  map[string]*Row
	order []string // canonical recency order, newest first

	cursor  string
	hasMore bool

	view          ViewMode
	searchTerm    string
	searchResults []string
	searchTimer   *time.Timer
	searcher      func(term string)
	debounce      time.Duration

	optimistic map[optimisticKey]fieldSnapshot

	notices  []Notice
	onChange func()
}

// searchDebounce is the default delay between the last keystroke and the
// search request.
const searchDebounce = 250 * time.Millisecond

// NewCache creates an empty cache. searcher is invoked (off the caller's
// goroutine) once per settled search term; pass nil to disable server-side
// search. Pass nil logger for default.
func NewCache(searcher func(term string), logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		logger:     logger.With("component", "convlist"),
		rows:       make(map[string]*Row),
		view:       ViewRecent,
		searcher:   searcher,
		debounce:   searchDebounce,
		optimistic: make(map[optimisticKey]fieldSnapshot),
	}
}

// SetOnChange registers a callback fired after every mutation. Used by the
// presentation layer to re-render.
func (c *Cache) SetOnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// notifyLocked schedules the change callback. Must hold mu; the callback
// itself runs without the lock so it can read back into the cache.
func (c *Cache) notifyLocked() {
	if c.onChange != nil {
		go c.onChange()
	}
}

// Add inserts or replaces a row and moves it to the front of the recency
// order.
func (c *Cache) Add(row Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.rows[row.ID]; exists {
		c.removeFromOrderLocked(row.ID)
	}
	r := row
	c.rows[row.ID] = &r
	c.order = append([]string{row.ID}, c.order...)
	c.notifyLocked()
}

// Update merges a patch into the row by id. Unknown ids are ignored: the
// row may have been removed while an update was in flight. Merge is
// last-write-wins per field, never whole-row overwrite.
func (c *Cache) Update(id string, p Patch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateLocked(id, p)
	c.notifyLocked()
}

func (c *Cache) updateLocked(id string, p Patch) {
	row, ok := c.rows[id]
	if !ok {
		return
	}
	if p.Title != nil {
		row.Title = *p.Title
	}
	if p.DisplayNamePending != nil {
		row.DisplayNamePending = *p.DisplayNamePending
	}
	if p.LastMessagePreview != nil {
		row.LastMessagePreview = *p.LastMessagePreview
	}
	if p.UpdatedAt != nil {
		row.UpdatedAt = *p.UpdatedAt
	}
	if p.ActiveAgent != nil {
		row.ActiveAgent = *p.ActiveAgent
	}
	if p.Memory != nil {
		row.Memory = *p.Memory
	}
}

// Remove deletes a row.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rows[id]; !ok {
		return
	}
	delete(c.rows, id)
	c.removeFromOrderLocked(id)
	c.notifyLocked()
}

func (c *Cache) removeFromOrderLocked(id string) {
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Row returns a copy of the row by id.
func (c *Cache) Row(id string) (Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[id]
	if !ok {
		return Row{}, false
	}
	return *row, true
}

// Rows returns the rows for the current view: recency order in the recent
// view, result order while search results are showing.
func (c *Cache) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.order
	if c.view == ViewSearchResults {
		ids = c.searchResults
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		if row, ok := c.rows[id]; ok {
			out = append(out, *row)
		}
	}
	return out
}

// ApplyPage appends a pagination page to the recent view. Rows already
// cached keep their canonical entry; the page only fills gaps.
func (c *Cache) ApplyPage(rows []Row, nextCursor string, hasMore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range rows {
		row := rows[i]
		if _, exists := c.rows[row.ID]; exists {
			continue
		}
		r := row
		c.rows[row.ID] = &r
		c.order = append(c.order, row.ID)
	}
	c.cursor = nextCursor
	c.hasMore = hasMore
	c.notifyLocked()
}

// NextCursor returns the pagination cursor and whether more pages exist.
func (c *Cache) NextCursor() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, c.hasMore
}

// Touch bumps a conversation to the top of the recency order with a new
// last-message preview and timestamp.
func (c *Cache) Touch(id, preview string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, ok := c.rows[id]
	if !ok {
		return
	}
	row.LastMessagePreview = preview
	row.UpdatedAt = at
	c.removeFromOrderLocked(id)
	c.order = append([]string{id}, c.order...)
	c.notifyLocked()
}

// SortRecent re-sorts the recent view by UpdatedAt, newest first. Used after
// bulk page loads where server order and local updates interleave.
func (c *Cache) SortRecent() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.order, func(i, j int) bool {
		a, b := c.rows[c.order[i]], c.rows[c.order[j]]
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	c.notifyLocked()
}

// AddNotice records a dismissible user-visible notification.
func (c *Cache) AddNotice(id, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, Notice{ID: id, Message: message, At: time.Now()})
	c.notifyLocked()
}

// DismissNotice removes a notification by id.
func (c *Cache) DismissNotice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			break
		}
	}
	c.notifyLocked()
}

// Notices returns pending notifications.
func (c *Cache) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}
