// ABOUTME: Optimistic write staging with exact per-field rollback
// ABOUTME: Capture snapshot -> apply -> commit-or-revert, keyed by (id, field)

package convlist

// optimisticKey scopes a staged write to one field of one conversation, so
// concurrent optimistic writes to different fields never interfere.
type optimisticKey struct {
	id    string
	field string
}

const (
	fieldTitle  = "title"
	fieldMemory = "memory"
)

// fieldSnapshot is the exact pre-write value restored on rollback.
type fieldSnapshot struct {
	title  string
	memory MemoryPreference
}

// Pending is a staged optimistic write awaiting backend confirmation.
// Exactly one of Commit or Rollback must be called; both are idempotent.
type Pending struct {
	cache *Cache
	key   optimisticKey
	done  bool
}

// StageRename optimistically applies a new title and returns the pending
// write. Returns nil if the conversation is unknown.
func (c *Cache) StageRename(id, title string) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, ok := c.rows[id]
	if !ok {
		return nil
	}
	key := optimisticKey{id: id, field: fieldTitle}
	// A second staged write to the same field keeps the original snapshot:
	// rollback must restore the value before the first optimistic apply.
	if _, staged := c.optimistic[key]; !staged {
		c.optimistic[key] = fieldSnapshot{title: row.Title}
	}
	row.Title = title
	c.notifyLocked()
	return &Pending{cache: c, key: key}
}

// StageMemory optimistically applies a new memory preference and returns
// the pending write. Returns nil if the conversation is unknown.
func (c *Cache) StageMemory(id string, pref MemoryPreference) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, ok := c.rows[id]
	if !ok {
		return nil
	}
	key := optimisticKey{id: id, field: fieldMemory}
	if _, staged := c.optimistic[key]; !staged {
		c.optimistic[key] = fieldSnapshot{memory: row.Memory}
	}
	row.Memory = pref
	c.notifyLocked()
	return &Pending{cache: c, key: key}
}

// Commit confirms the optimistic value and discards the snapshot.
func (p *Pending) Commit() {
	if p == nil || p.done {
		return
	}
	p.done = true

	p.cache.mu.Lock()
	defer p.cache.mu.Unlock()
	delete(p.cache.optimistic, p.key)
}

// Rollback restores the exact pre-write snapshot for the staged field.
// Other fields of the row are untouched.
func (p *Pending) Rollback() {
	if p == nil || p.done {
		return
	}
	p.done = true

	p.cache.mu.Lock()
	defer p.cache.mu.Unlock()

	snap, ok := p.cache.optimistic[p.key]
	if !ok {
		return
	}
	delete(p.cache.optimistic, p.key)

	row, ok := p.cache.rows[p.key.id]
	if !ok {
		return
	}
	switch p.key.field {
	case fieldTitle:
		row.Title = snap.title
	case fieldMemory:
		row.Memory = snap.memory
	}
	p.cache.notifyLocked()
}
