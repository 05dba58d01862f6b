// Package notify holds StateSink implementations. Feed keeps the latest
// notifications of one screen session in memory so HTTP clients can read them
// incrementally by sequence number.
package notify

import (
	"sync"

	"merchantdispatch/internal/core/ports"
)

// DefaultCapacity is how many notifications a Feed retains.
const DefaultCapacity = 256

// Feed is a bounded, append-only notification log implementing
// ports.NotificationFeed. Oldest entries are dropped
// when the capacity is reached. Notify never blocks on readers.
type Feed struct {
	mu       sync.Mutex
	capacity int
	entries  []ports.FeedEntry
	lastSeq  uint64
}

// NewFeed creates a feed. A non-positive capacity takes DefaultCapacity.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{capacity: capacity, entries: make([]ports.FeedEntry, 0, capacity)}
}

// Notify implements ports.StateSink.
func (f *Feed) Notify(n ports.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeq++
	if len(f.entries) == f.capacity {
		copy(f.entries, f.entries[1:])
		f.entries = f.entries[:len(f.entries)-1]
	}
	f.entries = append(f.entries, ports.FeedEntry{Seq: f.lastSeq, Notification: n})
}

// Since returns up to limit entries with Seq greater than after, oldest first.
// A non-positive limit returns everything retained.
func (f *Feed) Since(after uint64, limit int) []ports.FeedEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.FeedEntry, 0)
	for _, e := range f.entries {
		if e.Seq <= after {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// LastSeq is the sequence number of the newest notification, 0 when empty.
func (f *Feed) LastSeq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeq
}
