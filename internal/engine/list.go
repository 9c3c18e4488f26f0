// ABOUTME: Conversation list operations: refresh, paging, rename, memory
// ABOUTME: Optimistic writes commit on success or roll back with a notice

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/2389/coven-client/internal/api"
	"github.com/2389/coven-client/internal/convlist"
)

// listPageSize bounds one conversation list fetch.
const listPageSize = 30

// RefreshList replaces pagination state with the first page of the
// conversation list. Rows already present keep their cached fields where
// the server row carries nothing newer.
func (e *Engine) RefreshList(ctx context.Context) error {
	page, err := e.api.ListConversations(ctx, "", listPageSize)
	if err != nil {
		return fmt.Errorf("refreshing conversation list: %w", err)
	}
	e.list.ApplyPage(summaryRows(page.Conversations), page.NextCursor, page.HasMore)
	return nil
}

// LoadMoreList appends the next page of the conversation list.
func (e *Engine) LoadMoreList(ctx context.Context) error {
	cursor, ok := e.list.NextCursor()
	if !ok {
		return nil
	}
	page, err := e.api.ListConversations(ctx, cursor, listPageSize)
	if err != nil {
		return fmt.Errorf("loading more conversations: %w", err)
	}
	e.list.ApplyPage(summaryRows(page.Conversations), page.NextCursor, page.HasMore)
	return nil
}

// Rename applies a title optimistically, then confirms it with the server.
// On failure the previous title is restored exactly and a dismissible
// notice is added.
func (e *Engine) Rename(ctx context.Context, conversationID, title string) error {
	pending := e.list.StageRename(conversationID, title)
	summary, err := e.api.RenameConversation(ctx, conversationID, title)
	if err != nil {
		pending.Rollback()
		e.list.AddNotice(uuid.New().String(), fmt.Sprintf("rename failed: %v", err))
		return fmt.Errorf("renaming conversation: %w", err)
	}
	pending.Commit()

	// The server's summary is canonical; its title may differ from what was
	// submitted (normalization) and it carries the fresh updated_at.
	row := summary.Row()
	patch := convlist.Patch{Title: &row.Title}
	if !row.UpdatedAt.IsZero() {
		patch.UpdatedAt = &row.UpdatedAt
	}
	e.list.Update(conversationID, patch)
	return nil
}

// SetMemory applies a memory preference optimistically, then confirms it
// with the server, rolling back with a notice on failure.
func (e *Engine) SetMemory(ctx context.Context, conversationID string, pref convlist.MemoryPreference) error {
	pending := e.list.StageMemory(conversationID, pref)
	if err := e.api.UpdateConversationMemory(ctx, conversationID, pref); err != nil {
		pending.Rollback()
		e.list.AddNotice(uuid.New().String(), fmt.Sprintf("memory update failed: %v", err))
		return fmt.Errorf("updating memory preference: %w", err)
	}
	pending.Commit()
	return nil
}

// runSearch is the cache's searcher hook, invoked after the debounce
// settles. It runs the server search in the background and reports results
// back under the term they belong to; the cache drops stale terms itself.
func (e *Engine) runSearch(term string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()

		results, err := e.api.SearchConversations(ctx, term)
		if err != nil {
			e.logger.Debug("search failed", "term", term, "error", err)
			e.list.SetSearchResults(term, nil)
			return
		}
		e.list.SetSearchResults(term, summaryRows(results))
	}()
}

func summaryRows(summaries []api.Summary) []convlist.Row {
	rows := make([]convlist.Row, 0, len(summaries))
	for i := range summaries {
		rows = append(rows, summaries[i].Row())
	}
	return rows
}
