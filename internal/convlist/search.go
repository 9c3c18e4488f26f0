// ABOUTME: Debounced server-side search with an explicit view state machine
// ABOUTME: recent -> searching -> searchResults; clearing the term returns to recent

package convlist

import "time"

// View returns the current sidebar view state.
func (c *Cache) View() ViewMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// SearchTerm returns the current (possibly not yet settled) search input.
func (c *Cache) SearchTerm() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchTerm
}

// SetSearchTerm records a keystroke. The search request fires only after
// the debounce window passes with no further input, so typing a word
// character-by-character issues at most one request, for the final term.
// An empty term cancels any pending request and returns to the recent view.
func (c *Cache) SetSearchTerm(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.searchTerm = term
	if c.searchTimer != nil {
		c.searchTimer.Stop()
		c.searchTimer = nil
	}

	if term == "" {
		c.view = ViewRecent
		c.searchResults = nil
		c.notifyLocked()
		return
	}

	c.view = ViewSearching
	c.searchTimer = time.AfterFunc(c.debounce, func() {
		c.fireSearch(term)
	})
	c.notifyLocked()
}

// fireSearch issues the settled search request if the term is still current.
func (c *Cache) fireSearch(term string) {
	c.mu.Lock()
	if c.searchTerm != term || c.view != ViewSearching {
		c.mu.Unlock()
		return
	}
	searcher := c.searcher
	c.mu.Unlock()

	if searcher != nil {
		searcher(term)
	}
}

// SetSearchResults installs results for a completed search. Stale results
// (for a term the user has since changed) are dropped. Result rows merge
// into the canonical row set by id so a result row and its recent-view row
// are the same object.
func (c *Cache) SetSearchResults(term string, rows []Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if term != c.searchTerm {
		return
	}

	ids := make([]string, 0, len(rows))
	for i := range rows {
		row := rows[i]
		if _, exists := c.rows[row.ID]; !exists {
			r := row
			c.rows[row.ID] = &r
		}
		ids = append(ids, row.ID)
	}
	c.searchResults = ids
	c.view = ViewSearchResults
	c.notifyLocked()
}

// LeaveSearch abandons any search state and returns to the recent view.
// Called when the user switches away from a non-empty search term.
func (c *Cache) LeaveSearch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.searchTimer != nil {
		c.searchTimer.Stop()
		c.searchTimer = nil
	}
	c.searchTerm = ""
	c.searchResults = nil
	c.view = ViewRecent
	c.notifyLocked()
}

// SetSearchDebounce overrides the default delay between the last keystroke
// and the search request. Non-positive values are ignored.
func (c *Cache) SetSearchDebounce(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debounce = d
}
