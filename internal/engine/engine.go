// ABOUTME: Engine core: construction, snapshot fan-out, account streams, close
// ABOUTME: Holds the per-conversation state and the shared caches

package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-client/internal/api"
	"github.com/2389/coven-client/internal/conversation"
	"github.com/2389/coven-client/internal/convlist"
	"github.com/2389/coven-client/internal/frame"
	"github.com/2389/coven-client/internal/notify"
	"github.com/2389/coven-client/internal/session"
	"github.com/2389/coven-client/internal/sidechannel"
)

// defaultHistoryPageSize bounds one history fetch.
const defaultHistoryPageSize = 50

// previewMaxLen bounds the conversation list preview text.
const previewMaxLen = 80

// searchTimeout bounds one background search request.
const searchTimeout = 10 * time.Second

// Options configures an Engine. API is required; everything else has a
// usable zero value.
type Options struct {
	API             *api.Client
	Logger          *slog.Logger
	TitleTimeout    time.Duration
	MetadataTimeout time.Duration
	SearchDebounce  time.Duration
	HistoryPageSize int
}

// Engine is the composition root. It reconciles one active conversation's
// event stream into renderable state and keeps the conversation list,
// notification feed, and snapshot subscribers current.
type Engine struct {
	api      *api.Client
	logger   *slog.Logger
	sessions *session.Manager
	list     *convlist.Cache
	feed     *notify.Feed
	bcast    *conversation.SnapshotBroadcaster

	titleTimeout    time.Duration
	metadataTimeout time.Duration
	historyPageSize int

	mu            sync.Mutex
	state         *conversation.State
	gate          *frame.Gate
	title         *sidechannel.TitleSync
	metadata      *sidechannel.MetadataSync
	historyCursor string
	historyMore   bool
}

// New builds an Engine around the given gateway client.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	e := &Engine{
		api:             opts.API,
		logger:          logger,
		sessions:        session.NewManager(logger),
		feed:            notify.NewFeed(logger),
		bcast:           conversation.NewSnapshotBroadcaster(logger),
		titleTimeout:    opts.TitleTimeout,
		metadataTimeout: opts.MetadataTimeout,
		historyPageSize: opts.HistoryPageSize,
		state:           conversation.NewState("", logger),
		gate:            frame.NewGate(),
	}
	if e.historyPageSize <= 0 {
		e.historyPageSize = defaultHistoryPageSize
	}
	e.list = convlist.NewCache(e.runSearch, logger)
	e.list.SetSearchDebounce(opts.SearchDebounce)
	return e
}

// List exposes the conversation list cache.
func (e *Engine) List() *convlist.Cache { return e.list }

// Feed exposes the billing and activity notification feed.
func (e *Engine) Feed() *notify.Feed { return e.feed }

// Snapshot returns the current render state of the active conversation.
func (e *Engine) Snapshot() *conversation.Snapshot {
	return e.state.Snapshot()
}

// Subscribe registers a snapshot observer for the given conversation.
// The channel closes when ctx is cancelled or the engine shuts down.
func (e *Engine) Subscribe(ctx context.Context, conversationID string) (<-chan *conversation.Snapshot, string) {
	return e.bcast.Subscribe(ctx, conversationID)
}

// Unsubscribe removes a snapshot observer.
func (e *Engine) Unsubscribe(conversationID, subID string) {
	e.bcast.Unsubscribe(conversationID, subID)
}

// publish fans the current snapshot out to observers of the conversation.
func (e *Engine) publish(conversationID string) {
	e.bcast.Publish(conversationID, e.state.Snapshot())
}

// StartAccountStreams opens the tenant-wide billing and activity streams.
// Both fail open: a stream error is logged and the feed stays as it was.
func (e *Engine) StartAccountStreams(ctx context.Context) {
	e.sessions.Open(ctx, session.SlotBilling, e.api.OpenBillingStream, session.Handlers{
		OnEvent: func(ev session.Event) {
			if err := e.feed.OnBillingEvent(ev.Data); err != nil {
				e.logger.Debug("dropping malformed billing event", "error", err)
			}
		},
		OnError: e.feed.OnError,
	})

	e.sessions.Open(ctx, session.SlotActivity, e.api.OpenActivityStream, session.Handlers{
		OnEvent: func(ev session.Event) {
			if err := e.feed.OnActivityEvent(ev.Data); err != nil {
				e.logger.Debug("dropping malformed activity event", "error", err)
			}
		},
		OnError: e.feed.OnError,
	})
}

// Close shuts the engine down: every stream slot, both side-channel syncs,
// and the snapshot fan-out. No callbacks fire after Close returns.
func (e *Engine) Close() {
	e.mu.Lock()
	title, metadata := e.title, e.metadata
	e.title, e.metadata = nil, nil
	e.mu.Unlock()

	e.sessions.CloseAll()
	if title != nil {
		title.Close()
	}
	if metadata != nil {
		metadata.Close()
	}
	e.bcast.Close()
}
