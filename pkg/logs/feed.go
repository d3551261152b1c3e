// Package logs presents one process's output as a single chronologically
// ordered feed: cursor-paged history fetched on demand, the live tail
// streamed on top, and a cache so revisiting a finished process is instant.
package logs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/taskdeck/deckstream/pkg/api"
	"github.com/taskdeck/deckstream/pkg/errors"
	"github.com/taskdeck/deckstream/pkg/history"
	"github.com/taskdeck/deckstream/pkg/logcache"
	"github.com/taskdeck/deckstream/pkg/stream"
)

// Config wires a feed's collaborators. History is required; Stream enables
// the live tail; Cache is optional and shared across feeds.
type Config struct {
	History  *history.Client
	Stream   *stream.Config
	Cache    *logcache.Cache
	PageSize int

	// Running marks the process as live at start. Live feeds open a stream
	// session and are excluded from the cache.
	Running bool

	// OnEntry is called for every live entry appended to the feed, from the
	// stream session's goroutine.
	OnEntry func(api.LogEntry)
}

// Feed is the merged history+live view of one process's log stream.
type Feed struct {
	processID string
	cfg       Config
	log       *slog.Logger

	mu          sync.Mutex
	entries     []api.LogEntry
	cursor      string
	hasMore     bool
	running     bool
	loadingMore bool
	started     bool
	stopped     bool
	loaded      bool
	lastSeq     int64
	lastErr     error
	session     *stream.Session
}

// NewFeed creates a feed for the given process. Nothing is fetched until
// Start.
func NewFeed(processID string, cfg Config) *Feed {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Feed{
		processID: processID,
		cfg:       cfg,
		log:       slog.With(slog.String("process", processID)),
		running:   cfg.Running,
	}
}

// Start loads the most recent history page (or the cached snapshot for a
// previously viewed finished process) and, for a running process, opens the
// live stream on top of it. A feed that is already running rejects a second
// Start; a stopped feed may be started again.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.NewStreamError(errors.ErrorTypeProtocol, "feed already started")
	}
	if f.cfg.Running && f.cfg.Stream == nil {
		f.mu.Unlock()
		return errors.NewStreamError(errors.ErrorTypeProtocol,
			"stream configuration is required for a running process")
	}
	f.started = true
	f.stopped = false
	f.loaded = false
	f.running = f.cfg.Running
	f.lastErr = nil
	f.mu.Unlock()

	if !f.loadInitial(ctx) {
		f.mu.Lock()
		f.started = false
		f.mu.Unlock()
		return f.Err()
	}

	f.mu.Lock()
	running := f.running
	f.mu.Unlock()
	if !running {
		return nil
	}

	initial, err := json.Marshal(api.LogDocument{
		ProcessID: f.processID,
		Status:    api.ProcessRunning,
		Entries:   []api.LogEntry{},
	})
	if err != nil {
		f.mu.Lock()
		f.started = false
		f.mu.Unlock()
		return errors.NewProtocolError("encode initial document", err.Error())
	}

	session := stream.New(f.cfg.Stream, f.processID, stream.Options{
		InitialDocument: initial,
		OnUpdate:        f.onUpdate,
	})
	f.mu.Lock()
	f.session = session
	f.mu.Unlock()
	if err := session.Start(ctx); err != nil {
		f.mu.Lock()
		f.started = false
		f.session = nil
		f.mu.Unlock()
		return err
	}
	return nil
}

// loadInitial populates the feed from cache or the newest history page. It
// reports whether the feed is usable.
func (f *Feed) loadInitial(ctx context.Context) bool {
	if f.cfg.Cache != nil {
		if snap, ok := f.cfg.Cache.Get(f.processID); ok {
			f.mu.Lock()
			f.entries = snap.Entries
			f.cursor = snap.Cursor
			f.hasMore = snap.HasMore
			f.lastSeq = maxSequence(snap.Entries)
			f.loaded = true
			f.mu.Unlock()
			f.log.Debug("feed restored from cache", slog.Int("entries", len(snap.Entries)))
			return true
		}
	}

	page, err := f.cfg.History.Logs(ctx, f.processID, f.cfg.PageSize, "", history.Backward)
	if err != nil {
		f.setErr(err)
		return false
	}

	f.mu.Lock()
	f.entries = page.Entries
	f.cursor = page.NextCursor
	f.hasMore = page.HasMore
	f.lastSeq = maxSequence(page.Entries)
	f.loaded = true
	f.mu.Unlock()
	return true
}

// Stop tears down the live session and, for a finished process, writes the
// feed into the cache so navigating back is instant. Live feeds are never
// cached, and neither is a feed that never loaded or whose last fetch
// failed: caching those would pin a wrong snapshot over the real history.
func (f *Feed) Stop() {
	f.mu.Lock()
	session := f.session
	f.session = nil
	f.started = false
	f.stopped = true
	f.mu.Unlock()

	if session != nil {
		session.Stop()
	}

	if f.cfg.Cache != nil {
		f.mu.Lock()
		cacheable := f.loaded && f.lastErr == nil
		snap := logcache.Snapshot{Entries: f.entries, Cursor: f.cursor, HasMore: f.hasMore}
		live := f.running
		f.mu.Unlock()
		if cacheable {
			f.cfg.Cache.Put(f.processID, snap, live)
		}
	}
}

// LoadMore fetches the next strictly-older history page and prepends it.
// It is a no-op while a fetch is in flight or when no older page exists.
func (f *Feed) LoadMore(ctx context.Context) error {
	f.mu.Lock()
	if f.loadingMore || !f.hasMore || f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.loadingMore = true
	cursor := f.cursor
	f.mu.Unlock()

	page, err := f.cfg.History.Logs(ctx, f.processID, f.cfg.PageSize, cursor, history.Backward)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadingMore = false
	if f.stopped {
		// The feed was torn down while the fetch was in flight; discard.
		return nil
	}
	if err != nil {
		f.lastErr = err
		return err
	}

	// Older pages always land in front; the live tail never crosses the
	// historical boundary.
	merged := make([]api.LogEntry, 0, len(page.Entries)+len(f.entries))
	merged = append(merged, page.Entries...)
	merged = append(merged, f.entries...)
	f.entries = merged
	f.cursor = page.NextCursor
	f.hasMore = page.HasMore
	return nil
}

// Entries returns the merged feed. While the process is running and nothing
// waits on approval, a loading sentinel trails the list.
func (f *Feed) Entries() []api.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]api.LogEntry, len(f.entries))
	copy(out, f.entries)
	if f.running && !anyPendingApproval(f.entries) {
		out = append(out, api.LoadingSentinel())
	}
	return out
}

// Running reports whether the process is still emitting.
func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// HasMore reports whether older history pages exist.
func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

// LoadingMore reports whether a history fetch is in flight.
func (f *Feed) LoadingMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadingMore
}

// Err returns the most recent feed or session error, or nil.
func (f *Feed) Err() error {
	f.mu.Lock()
	session := f.session
	err := f.lastErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if session != nil {
		return session.Err()
	}
	return nil
}

// onUpdate ingests a new document snapshot from the stream session. Live
// entries are appended in sequence order; anything at or below the highest
// sequence already shown is a duplicate and dropped.
func (f *Feed) onUpdate(doc []byte) {
	var d api.LogDocument
	if err := json.Unmarshal(doc, &d); err != nil {
		f.setErr(errors.NewProtocolError("decode stream document", err.Error()))
		return
	}

	var fresh []api.LogEntry
	f.mu.Lock()
	for _, e := range d.Entries {
		if e.Sequence > f.lastSeq {
			f.entries = append(f.entries, e)
			f.lastSeq = e.Sequence
			fresh = append(fresh, e)
		}
	}
	if d.Status != "" && d.Status.Terminal() {
		f.running = false
	}
	onEntry := f.cfg.OnEntry
	f.mu.Unlock()

	if onEntry != nil {
		for _, e := range fresh {
			onEntry(e)
		}
	}
}

func (f *Feed) setErr(err error) {
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
}

func maxSequence(entries []api.LogEntry) int64 {
	var max int64
	for _, e := range entries {
		if e.Sequence > max {
			max = e.Sequence
		}
	}
	return max
}

func anyPendingApproval(entries []api.LogEntry) bool {
	for _, e := range entries {
		if e.PendingApproval {
			return true
		}
	}
	return false
}
