// Package convlist maintains the conversation sidebar: summary rows,
// pagination, debounced search, and optimistic writes with rollback.
//
// # Overview
//
// The Cache is the single source of truth for per-conversation summary
// metadata. Multiple writers touch it (rename, memory preference, title
// sync) but every update merges at the field level, so concurrent unrelated
// writes never clobber each other's fields.
//
// # Optimistic writes
//
// Rename and memory-preference changes apply synchronously, then commit or
// revert once the backend answers:
//
//	pending := cache.StageRename("conv-1", "New title")
//	if _, err := api.RenameConversation(ctx, "conv-1", "New title"); err != nil {
//	    pending.Rollback() // restores the exact pre-write snapshot
//	} else {
//	    pending.Commit()
//	}
//
// Snapshots are captured per (conversation, field), so optimistic writes to
// different fields of the same row are independent.
//
// # Search
//
// Search input is debounced before a request is issued. The view follows a
// small state machine: recent -> searching -> searchResults, returning to
// recent whenever the term is cleared or the user switches away.
package convlist
