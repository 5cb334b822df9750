// Package relay isolates all relay network access behind a small
// interface, so the resolver and timeline layers can be exercised against
// fakes while production code talks to real relays over websockets.
package relay

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Client performs one-shot operations against a single relay endpoint.
type Client interface {
	// Query sends a filtered subscription to the relay at url and returns
	// the stored events it answers with.
	Query(ctx context.Context, url string, filter nostr.Filter) ([]*nostr.Event, error)

	// Publish sends a signed event to the relay at url and waits for its
	// acknowledgement.
	Publish(ctx context.Context, url string, ev nostr.Event) error
}
