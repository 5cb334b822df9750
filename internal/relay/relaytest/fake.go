// Package relaytest provides an in-memory relay.Client for tests.
package relaytest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// ErrUnreachable is returned for urls no FakeRelay was registered under.
var ErrUnreachable = errors.New("connection refused")

// FakeRelay is the scripted behavior of one relay endpoint.
type FakeRelay struct {
	Events     []*nostr.Event
	QueryErr   error
	PublishErr error

	Published  []nostr.Event
	QueryCalls int
}

// FakeClient implements relay.Client over a map of scripted relays.
type FakeClient struct {
	mu     sync.Mutex
	relays map[string]*FakeRelay
}

func New() *FakeClient {
	return &FakeClient{relays: make(map[string]*FakeRelay)}
}

// Add registers a scripted relay under url and returns it for later
// inspection.
func (c *FakeClient) Add(url string, r *FakeRelay) *FakeRelay {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r == nil {
		r = &FakeRelay{}
	}
	c.relays[url] = r
	return r
}

func (c *FakeClient) Query(ctx context.Context, url string, filter nostr.Filter) ([]*nostr.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.relays[url]
	if !ok {
		return nil, ErrUnreachable
	}
	r.QueryCalls++
	if r.QueryErr != nil {
		return nil, r.QueryErr
	}

	var matched []*nostr.Event
	for _, ev := range r.Events {
		if filter.Matches(ev) {
			matched = append(matched, ev)
		}
	}
	// Real relays return stored events newest-first.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt > matched[j].CreatedAt
		}
		return matched[i].ID > matched[j].ID
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (c *FakeClient) Publish(ctx context.Context, url string, ev nostr.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.relays[url]
	if !ok {
		return ErrUnreachable
	}
	if r.PublishErr != nil {
		return r.PublishErr
	}
	r.Published = append(r.Published, ev)
	return nil
}
