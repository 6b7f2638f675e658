package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suivipro/internal/domain/notification"
)

// fakeServer serves the notification endpoints with the real response
// envelope, backed by an in-memory slice kept newest first.
type fakeServer struct {
	mu     sync.Mutex
	items  []*notification.NotificationResponse
	unread int64

	markedRead   []int64
	cleanupCalls int
	authSeen     []string

	// When set, the handler blocks this first-page request number until the
	// channel closes or the request is cancelled.
	blockRequest  int64
	blockGate     chan struct{}
	blockEntered  chan struct{}
	firstPageSeen int64
}

func (fs *fakeServer) push(n *notification.NotificationResponse) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.items = append([]*notification.NotificationResponse{n}, fs.items...)
	if !n.IsRead {
		fs.unread++
	}
}

func (fs *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page < 1 {
			page = 1
		}

		if page == 1 {
			fs.mu.Lock()
			fs.firstPageSeen++
			seen := fs.firstPageSeen
			gate := fs.blockGate
			entered := fs.blockEntered
			shouldBlock := gate != nil && seen == fs.blockRequest
			fs.mu.Unlock()

			if shouldBlock {
				if entered != nil {
					close(entered)
				}
				select {
				case <-gate:
				case <-r.Context().Done():
					return
				}
			}
		}

		fs.mu.Lock()
		start := (page - 1) * limit
		end := start + limit
		if start > len(fs.items) {
			start = len(fs.items)
		}
		if end > len(fs.items) {
			end = len(fs.items)
		}
		pageItems := fs.items[start:end]
		fs.mu.Unlock()

		writeData(w, notification.NotificationListResponse{
			Notifications: pageItems,
			Page:          page,
			Limit:         limit,
			HasMore:       len(pageItems) == limit,
		})
	})

	mux.HandleFunc("GET /api/v1/notifications/unread/count", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		count := fs.unread
		fs.authSeen = append(fs.authSeen, r.Header.Get("Authorization"))
		fs.mu.Unlock()
		writeData(w, notification.UnreadCountResponse{Count: count})
	})

	mux.HandleFunc("PUT /api/v1/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		fs.mu.Lock()
		fs.markedRead = append(fs.markedRead, id)
		var found *notification.NotificationResponse
		for _, n := range fs.items {
			if n.ID == id {
				if !n.IsRead {
					n.IsRead = true
					fs.unread--
				}
				found = n
				break
			}
		}
		fs.mu.Unlock()

		if found == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found")
			return
		}
		writeData(w, found)
	})

	mux.HandleFunc("DELETE /api/v1/notifications/delete-all", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		deleted := int64(len(fs.items))
		fs.items = nil
		fs.unread = 0
		fs.mu.Unlock()
		writeData(w, notification.DeletedCountResponse{DeletedCount: deleted})
	})

	mux.HandleFunc("DELETE /api/v1/notifications/cleanup", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.cleanupCalls++
		fs.mu.Unlock()

		var req notification.CleanupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "Invalid request body")
			return
		}
		cutoff, err := time.Parse(time.RFC3339, req.CutoffDate)
		if err != nil || cutoff.After(time.Now()) {
			writeError(w, http.StatusBadRequest, "VALIDATION", "cutoff_date must be RFC3339")
			return
		}
		writeData(w, notification.DeletedCountResponse{DeletedCount: 0})
	})

	return mux
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func newTestSyncer(t *testing.T, fs *fakeServer, opts ...SyncerOption) *Syncer {
	t.Helper()
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	api := NewAPIClient(srv.URL, "test-token")
	return NewSyncer(api, log, opts...)
}

func seedItems(fs *fakeServer, n int) {
	// push reverses, so push oldest first to end with ids n..1 newest first
	for i := 1; i <= n; i++ {
		fs.push(&notification.NotificationResponse{
			ID:      int64(i),
			Type:    string(notification.TypeComment),
			Content: fmt.Sprintf("notification %d", i),
		})
	}
}

func TestSyncerPaginationRoundTrip(t *testing.T) {
	fs := &fakeServer{}
	seedItems(fs, 45)
	s := newTestSyncer(t, fs, WithPageSize(20))
	ctx := context.Background()

	require.NoError(t, s.loadInitial(ctx))
	assert.Equal(t, 20, s.Feed().Len())
	assert.True(t, s.HasMore())
	assert.Equal(t, int64(45), s.UnreadCount())

	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, 40, s.Feed().Len())
	assert.True(t, s.HasMore())

	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, 45, s.Feed().Len())
	assert.False(t, s.HasMore())

	// Exhausted: further calls are no-ops.
	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, 45, s.Feed().Len())

	// Newest first across page boundaries, no duplicates.
	snapshot := s.Feed().Snapshot()
	require.Len(t, snapshot, 45)
	assert.Equal(t, int64(45), snapshot[0].ID)
	assert.Equal(t, int64(1), snapshot[44].ID)
	assert.Equal(t, StateReady, s.State())
}

func TestSyncerHasMoreOnExactMultiple(t *testing.T) {
	fs := &fakeServer{}
	seedItems(fs, 40)
	s := newTestSyncer(t, fs, WithPageSize(20))
	ctx := context.Background()

	require.NoError(t, s.loadInitial(ctx))
	require.NoError(t, s.LoadMore(ctx))
	// Both pages came back full, so the client still believes there is more.
	assert.True(t, s.HasMore())

	// The probe page is empty and flips the flag.
	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, 40, s.Feed().Len())
	assert.False(t, s.HasMore())
}

func TestSyncerRefreshSupersedesInFlightRefresh(t *testing.T) {
	fs := &fakeServer{
		blockRequest: 2, // initial load is request 1, first refresh request 2
		blockGate:    make(chan struct{}),
		blockEntered: make(chan struct{}),
	}
	seedItems(fs, 5)
	s := newTestSyncer(t, fs, WithPageSize(20))
	ctx := context.Background()

	require.NoError(t, s.loadInitial(ctx))
	assert.Equal(t, 5, s.Feed().Len())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Refresh(ctx) // stalls inside the server
	}()
	<-fs.blockEntered

	// New data arrives, then a second refresh starts and cancels the first.
	fs.push(&notification.NotificationResponse{
		ID:      100,
		Type:    string(notification.TypeAssignment),
		Content: "nouvelle affectation",
	})
	s.Refresh(ctx)

	close(fs.blockGate)
	wg.Wait()

	snapshot := s.Feed().Snapshot()
	require.Len(t, snapshot, 6)
	assert.Equal(t, int64(100), snapshot[0].ID)

	// The cancelled refresh surfaced nothing.
	assert.NoError(t, s.LastError())
	assert.Equal(t, StateReady, s.State())
}

func TestSyncerMarkReadIsOptimistic(t *testing.T) {
	fs := &fakeServer{}
	seedItems(fs, 3)
	s := newTestSyncer(t, fs, WithPageSize(20))
	ctx := context.Background()

	require.NoError(t, s.loadInitial(ctx))
	require.Equal(t, int64(3), s.UnreadCount())

	require.NoError(t, s.MarkRead(ctx, 2))

	n, ok := s.Feed().Get(2)
	require.True(t, ok)
	assert.True(t, n.IsRead)
	assert.Equal(t, int64(2), s.UnreadCount())

	fs.mu.Lock()
	marked := fs.markedRead
	fs.mu.Unlock()
	assert.Equal(t, []int64{2}, marked)

	// Already read: no second decrement, the server call still happens.
	require.NoError(t, s.MarkRead(ctx, 2))
	assert.Equal(t, int64(2), s.UnreadCount())
}

func TestSyncerDeleteAllClearsLocalState(t *testing.T) {
	fs := &fakeServer{}
	seedItems(fs, 8)
	s := newTestSyncer(t, fs, WithPageSize(5))
	ctx := context.Background()

	require.NoError(t, s.loadInitial(ctx))
	require.NoError(t, s.LoadMore(ctx))
	require.Equal(t, 8, s.Feed().Len())

	require.NoError(t, s.DeleteAll(ctx))
	assert.Equal(t, 0, s.Feed().Len())
	assert.Equal(t, int64(0), s.UnreadCount())
	assert.False(t, s.HasMore())
}

func TestSyncerStartAndClose(t *testing.T) {
	fs := &fakeServer{}
	seedItems(fs, 2)
	s := newTestSyncer(t, fs, WithIntervals(10*time.Millisecond, 15*time.Millisecond))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(40 * time.Millisecond)
	s.Close()

	assert.Equal(t, 2, s.Feed().Len())
	assert.NoError(t, s.LastError())
}

func TestSyncerFlagsNewNotificationsWithoutTouchingFeed(t *testing.T) {
	fs := &fakeServer{}
	seedItems(fs, 3)
	s := newTestSyncer(t, fs, WithPageSize(20))
	ctx := context.Background()

	require.NoError(t, s.loadInitial(ctx))
	assert.False(t, s.NewAvailable())

	fs.push(&notification.NotificationResponse{
		ID:      50,
		Type:    string(notification.TypeComment),
		Content: "nouveau commentaire",
	})

	s.RefreshUnreadCount(ctx)
	assert.True(t, s.NewAvailable())
	// The feed was not forcibly refreshed.
	assert.Equal(t, 3, s.Feed().Len())

	s.Refresh(ctx)
	assert.False(t, s.NewAvailable())
	assert.Equal(t, 4, s.Feed().Len())
}

func TestSyncerBackgroundRefreshFailureMarksStale(t *testing.T) {
	fs := &fakeServer{}
	seedItems(fs, 2)
	srv := httptest.NewServer(fs.handler())

	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewSyncer(NewAPIClient(srv.URL, "test-token"), log, WithPageSize(20))
	ctx := context.Background()

	require.NoError(t, s.loadInitial(ctx))
	require.Equal(t, 2, s.Feed().Len())

	srv.Close()
	s.Refresh(ctx)

	// Last-known-good feed survives; no user-visible error, just staleness.
	assert.True(t, s.Stale())
	assert.NoError(t, s.LastError())
	assert.Equal(t, 2, s.Feed().Len())
	assert.Equal(t, StateReady, s.State())
}

func TestSyncerCleanupRunsAtMostOncePerInterval(t *testing.T) {
	fs := &fakeServer{}
	seedItems(fs, 2)
	s := newTestSyncer(t, fs, WithRetention(30*24*time.Hour, 50*time.Millisecond))
	ctx := context.Background()

	s.CleanupIfDue(ctx)
	// Inside the interval: skipped.
	s.CleanupIfDue(ctx)

	fs.mu.Lock()
	calls := fs.cleanupCalls
	fs.mu.Unlock()
	assert.Equal(t, 1, calls)

	time.Sleep(60 * time.Millisecond)
	s.CleanupIfDue(ctx)

	fs.mu.Lock()
	calls = fs.cleanupCalls
	fs.mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestSyncerCleanupIntervalDefaultsToWeekly(t *testing.T) {
	fs := &fakeServer{}
	s := newTestSyncer(t, fs, WithRetention(30*24*time.Hour, 0))
	assert.Equal(t, 7*24*time.Hour, s.cleanupEvery)

	// Without retention configured, cleanup never fires.
	s2 := newTestSyncer(t, fs)
	s2.CleanupIfDue(context.Background())

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, 0, fs.cleanupCalls)
}

func TestAPIClientSetTokenAppliesToSubsequentRequests(t *testing.T) {
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	api := NewAPIClient(srv.URL, "first-token")
	ctx := context.Background()

	_, err := api.UnreadCount(ctx)
	require.NoError(t, err)

	api.SetToken("second-token")
	_, err = api.UnreadCount(ctx)
	require.NoError(t, err)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, []string{"Bearer first-token", "Bearer second-token"}, fs.authSeen)
}

func TestAPIClientTokenSwapDuringPolling(t *testing.T) {
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	api := NewAPIClient(srv.URL, "initial")
	ctx := context.Background()

	// Re-login while count polls are in flight, as the syncer loops do.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			api.SetToken(fmt.Sprintf("session-%d", i))
			_, err := api.UnreadCount(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(context.Canceled))
	assert.True(t, IsCanceled(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.False(t, IsCanceled(context.DeadlineExceeded))
	assert.False(t, IsCanceled(nil))
}
