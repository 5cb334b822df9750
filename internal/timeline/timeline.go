// Package timeline aggregates status events from many relays into one
// merged view. Statuses are replaceable per (author, discriminator): the
// merge keeps the newest event per key and is monotonic, so replaying old
// data can never regress the view.
package timeline

import (
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"nostatus/internal/models"
)

// Key identifies one replaceable status slot.
type Key struct {
	Author        string
	Discriminator string
}

// Timeline is the merged mapping from Key to the newest known status
// event. Safe for concurrent use.
type Timeline struct {
	mu      sync.RWMutex
	entries map[Key]*nostr.Event
}

func New() *Timeline {
	return &Timeline{entries: make(map[Key]*nostr.Event)}
}

// Merge offers ev to the timeline and reports whether it replaced the
// current entry for its key. An event loses to a newer one, and on equal
// timestamps to a lexicographically greater event id, so the outcome is
// deterministic regardless of arrival order.
func (t *Timeline) Merge(ev *nostr.Event) bool {
	key := Key{Author: ev.PubKey, Discriminator: models.StatusDiscriminator(ev)}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.entries[key]
	if ok {
		if ev.CreatedAt < cur.CreatedAt {
			return false
		}
		if ev.CreatedAt == cur.CreatedAt && ev.ID <= cur.ID {
			return false
		}
	}
	t.entries[key] = ev
	return true
}

// Get returns the current entry for (author, discriminator), or nil.
func (t *Timeline) Get(author, discriminator string) *nostr.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[Key{Author: author, Discriminator: discriminator}]
}

// Len returns the number of distinct status slots.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Posts returns all entries ordered for display: newest first, ties
// broken by event id for a stable order.
func (t *Timeline) Posts() []*nostr.Event {
	t.mu.RLock()
	posts := make([]*nostr.Event, 0, len(t.entries))
	for _, ev := range t.entries {
		posts = append(posts, ev)
	}
	t.mu.RUnlock()

	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt != posts[j].CreatedAt {
			return posts[i].CreatedAt > posts[j].CreatedAt
		}
		return posts[i].ID > posts[j].ID
	})
	return posts
}
