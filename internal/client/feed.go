package client

import (
	"sync"

	"suivipro/internal/domain/notification"
)

// Feed is the client-side notification list: one record per id plus an
// explicit display order, so merging a fresh page never duplicates an entry
// already on screen.
type Feed struct {
	mu    sync.Mutex
	byID  map[int64]*notification.NotificationResponse
	order []int64
}

func NewFeed() *Feed {
	return &Feed{byID: make(map[int64]*notification.NotificationResponse)}
}

// Replace resets the feed to exactly these items, in order.
func (f *Feed) Replace(items []*notification.NotificationResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.byID = make(map[int64]*notification.NotificationResponse, len(items))
	f.order = f.order[:0]
	for _, n := range items {
		if _, seen := f.byID[n.ID]; seen {
			continue
		}
		f.byID[n.ID] = n
		f.order = append(f.order, n.ID)
	}
}

// MergeHead folds a fresh first page into the feed: known ids are updated in
// place, unseen ones are inserted at the front in their server order. Entries
// from deeper pages stay where they are.
func (f *Feed) MergeHead(items []*notification.NotificationResponse) (added int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fresh []int64
	for _, n := range items {
		if _, seen := f.byID[n.ID]; seen {
			f.byID[n.ID] = n
			continue
		}
		f.byID[n.ID] = n
		fresh = append(fresh, n.ID)
	}
	if len(fresh) > 0 {
		f.order = append(fresh, f.order...)
	}
	return len(fresh)
}

// Append folds a deeper page onto the end, skipping ids already present.
func (f *Feed) Append(items []*notification.NotificationResponse) (added int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, n := range items {
		if _, seen := f.byID[n.ID]; seen {
			f.byID[n.ID] = n
			continue
		}
		f.byID[n.ID] = n
		f.order = append(f.order, n.ID)
		added++
	}
	return added
}

// Snapshot returns the current list in display order.
func (f *Feed) Snapshot() []*notification.NotificationResponse {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*notification.NotificationResponse, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.byID[id])
	}
	return out
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func (f *Feed) Get(id int64) (*notification.NotificationResponse, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	return n, ok
}

// MarkRead flips the local read flag. Returns false when the id is unknown.
func (f *Feed) MarkRead(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.byID[id]
	if !ok {
		return false
	}
	n.IsRead = true
	return true
}

func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.byID {
		n.IsRead = true
	}
}

func (f *Feed) MarkAllUnread() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.byID {
		n.IsRead = false
	}
}

// Remove drops one entry, keeping the remaining order intact.
func (f *Feed) Remove(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byID[id]; !ok {
		return false
	}
	delete(f.byID, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return true
}

func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID = make(map[int64]*notification.NotificationResponse)
	f.order = f.order[:0]
}
