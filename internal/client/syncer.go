package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the syncer's coarse lifecycle, mirrored by the dashboard UI.
type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateLoadingMore State = "loading_more"
	StateRefreshing  State = "refreshing"
)

const (
	defaultCountInterval   = 30 * time.Second
	defaultRefreshInterval = 60 * time.Second
	defaultPageSize        = 20

	// Retention cleanup is a slow housekeeping task; roughly weekly per
	// client is plenty.
	defaultCleanupInterval = 7 * 24 * time.Hour
)

// Syncer keeps a local notification feed in step with the server by polling.
// A count tick refreshes the unread badge, a slower refresh tick re-fetches
// the first page; the server remains the source of truth and optimistic
// local mutations are reconciled by the next poll.
type Syncer struct {
	api  *APIClient
	feed *Feed
	log  *logrus.Logger

	countInterval   time.Duration
	refreshInterval time.Duration
	pageSize        int
	retention       time.Duration

	mu            sync.Mutex
	state         State
	page          int
	hasMore       bool
	unread        int64
	lastErr       error
	stale         bool
	newAvailable  bool
	fetchingMore  bool
	refreshGen    uint64
	refreshCancel context.CancelFunc
	lastCleanup   time.Time
	cleanupEvery  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// SyncerOption tweaks polling behaviour; defaults match the dashboard.
type SyncerOption func(*Syncer)

func WithIntervals(count, refresh time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.countInterval = count
		s.refreshInterval = refresh
	}
}

func WithPageSize(n int) SyncerOption {
	return func(s *Syncer) { s.pageSize = n }
}

// WithRetention enables periodic client-driven cleanup of notifications older
// than the given age, run at most once per interval. A non-positive interval
// keeps the weekly default.
func WithRetention(age, every time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.retention = age
		if every > 0 {
			s.cleanupEvery = every
		}
	}
}

func NewSyncer(api *APIClient, log *logrus.Logger, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		api:             api,
		feed:            NewFeed(),
		log:             log,
		countInterval:   defaultCountInterval,
		refreshInterval: defaultRefreshInterval,
		pageSize:        defaultPageSize,
		cleanupEvery:    defaultCleanupInterval,
		state:           StateIdle,
		page:            1,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Syncer) Feed() *Feed { return s.feed }

func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Syncer) UnreadCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Syncer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// LastError returns the most recent failure of a user-initiated operation.
// Cancellations and background poll failures are never recorded here.
func (s *Syncer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stale reports whether the last background refresh failed, so the UI can
// show a benign indicator instead of an error.
func (s *Syncer) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// NewAvailable reports whether the polled unread count ran ahead of the local
// one since the last refresh. The feed itself is left alone so a scrolled
// reader is not disrupted; the flag clears on the next applied refresh.
func (s *Syncer) NewAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newAvailable
}

// Start performs the initial load and launches the two polling loops.
func (s *Syncer) Start(ctx context.Context) error {
	if err := s.loadInitial(ctx); err != nil {
		return err
	}

	s.wg.Add(2)
	go s.countLoop(ctx)
	go s.refreshLoop(ctx)
	return nil
}

// Close stops the polling loops and cancels any in-flight refresh.
func (s *Syncer) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	s.mu.Lock()
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Syncer) countLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.countInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshUnreadCount(ctx)
		}
	}
}

func (s *Syncer) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
			s.CleanupIfDue(ctx)
		}
	}
}

func (s *Syncer) loadInitial(ctx context.Context) error {
	s.setState(StateLoading)

	page, err := s.api.List(ctx, 1, s.pageSize)
	if err != nil {
		s.fail(err)
		return err
	}

	s.feed.Replace(page.Notifications)

	s.mu.Lock()
	s.page = 1
	s.hasMore = page.HasMore
	s.state = StateReady
	s.lastErr = nil
	s.mu.Unlock()

	s.RefreshUnreadCount(ctx)

	// The first count is a baseline, not news.
	s.mu.Lock()
	s.newAvailable = false
	s.mu.Unlock()
	return nil
}

// Refresh re-fetches the first page and folds it into the feed. Starting a
// new refresh supersedes any in-flight one: the older request is cancelled
// and its result, if it still arrives, is discarded.
func (s *Syncer) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.refreshCancel != nil {
		s.refreshCancel()
	}
	refreshCtx, cancel := context.WithCancel(ctx)
	s.refreshCancel = cancel
	s.refreshGen++
	gen := s.refreshGen
	s.state = StateRefreshing
	s.mu.Unlock()

	page, err := s.api.List(refreshCtx, 1, s.pageSize)

	s.mu.Lock()
	current := gen == s.refreshGen
	if current && s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
	s.mu.Unlock()

	if !current {
		// A newer refresh owns the feed now.
		return
	}

	if err != nil {
		s.mu.Lock()
		s.state = StateReady
		if !IsCanceled(err) {
			// Background failure: keep the last-known-good feed, flag it.
			s.stale = true
			s.log.WithError(err).Debug("feed refresh failed")
		}
		s.mu.Unlock()
		return
	}

	s.feed.MergeHead(page.Notifications)

	s.mu.Lock()
	if s.page == 1 {
		s.hasMore = page.HasMore
	}
	s.state = StateReady
	s.stale = false
	s.newAvailable = false
	s.mu.Unlock()
}

// LoadMore fetches the next page and appends it. Calls while a fetch is
// already running, or once the server stopped returning full pages, are
// no-ops.
func (s *Syncer) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.fetchingMore || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.fetchingMore = true
	next := s.page + 1
	s.state = StateLoadingMore
	s.mu.Unlock()

	page, err := s.api.List(ctx, next, s.pageSize)

	s.mu.Lock()
	s.fetchingMore = false
	s.mu.Unlock()

	if err != nil {
		if IsCanceled(err) {
			s.setState(StateReady)
			return nil
		}
		s.fail(err)
		return err
	}

	s.feed.Append(page.Notifications)

	s.mu.Lock()
	s.page = next
	s.hasMore = page.HasMore
	s.state = StateReady
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

// RefreshUnreadCount updates the badge counter.
func (s *Syncer) RefreshUnreadCount(ctx context.Context) {
	count, err := s.api.UnreadCount(ctx)
	if err != nil {
		if !IsCanceled(err) {
			s.log.WithError(err).Debug("unread count poll failed")
		}
		return
	}
	s.mu.Lock()
	if count > s.unread {
		s.newAvailable = true
	}
	s.unread = count
	s.mu.Unlock()
}

// MarkRead applies the change locally first, then tells the server. A server
// failure is logged, not reverted: the next refresh restores the truth.
func (s *Syncer) MarkRead(ctx context.Context, id int64) error {
	if n, ok := s.feed.Get(id); ok && !n.IsRead {
		s.feed.MarkRead(id)
		s.mu.Lock()
		if s.unread > 0 {
			s.unread--
		}
		s.mu.Unlock()
	}

	if _, err := s.api.MarkRead(ctx, id); err != nil {
		if IsCanceled(err) {
			return nil
		}
		s.log.WithError(err).WithField("id", id).Warn("mark read failed, awaiting next sync")
		return err
	}
	return nil
}

func (s *Syncer) MarkAllRead(ctx context.Context) error {
	s.feed.MarkAllRead()
	s.mu.Lock()
	s.unread = 0
	s.mu.Unlock()

	if err := s.api.MarkAllRead(ctx); err != nil {
		if IsCanceled(err) {
			return nil
		}
		s.log.WithError(err).Warn("mark all read failed, awaiting next sync")
		return err
	}
	return nil
}

func (s *Syncer) MarkAllUnread(ctx context.Context) error {
	s.feed.MarkAllUnread()

	if err := s.api.MarkAllUnread(ctx); err != nil {
		if IsCanceled(err) {
			return nil
		}
		s.log.WithError(err).Warn("mark all unread failed, awaiting next sync")
		return err
	}
	s.RefreshUnreadCount(ctx)

	// The jump in the count was our own doing.
	s.mu.Lock()
	s.newAvailable = false
	s.mu.Unlock()
	return nil
}

func (s *Syncer) Delete(ctx context.Context, id int64) error {
	s.feed.Remove(id)

	if err := s.api.Delete(ctx, id); err != nil {
		if IsCanceled(err) {
			return nil
		}
		s.log.WithError(err).WithField("id", id).Warn("delete failed, awaiting next sync")
		return err
	}
	return nil
}

func (s *Syncer) DeleteAll(ctx context.Context) error {
	s.feed.Clear()
	s.mu.Lock()
	s.unread = 0
	s.page = 1
	s.hasMore = false
	s.mu.Unlock()

	if _, err := s.api.DeleteAll(ctx); err != nil {
		if IsCanceled(err) {
			return nil
		}
		s.log.WithError(err).Warn("delete all failed, awaiting next sync")
		return err
	}
	return nil
}

// CleanupIfDue runs the server-side retention cleanup at most once per
// cleanup period, when retention is configured.
func (s *Syncer) CleanupIfDue(ctx context.Context) {
	s.mu.Lock()
	due := s.retention > 0 && time.Since(s.lastCleanup) >= s.cleanupEvery
	if due {
		s.lastCleanup = time.Now()
	}
	retention := s.retention
	s.mu.Unlock()

	if !due {
		return
	}

	deleted, err := s.api.Cleanup(ctx, time.Now().Add(-retention))
	if err != nil {
		if !IsCanceled(err) {
			s.log.WithError(err).Debug("retention cleanup failed")
		}
		return
	}
	if deleted > 0 {
		s.log.WithField("deleted", deleted).Debug("retention cleanup done")
	}
}

func (s *Syncer) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Syncer) fail(err error) {
	s.mu.Lock()
	s.state = StateReady
	s.lastErr = err
	s.mu.Unlock()
}

// IsCanceled reports whether an error is a context cancellation. Cancelled
// requests are an internal mechanism and never shown to the user.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
