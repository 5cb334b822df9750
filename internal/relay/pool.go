package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"nostatus/internal/logging"
)

// Pool is the production Client. Connections are dialed on first use and
// kept for reuse; a connection that fails an operation is dropped so the
// next call redials. Close tears everything down, which also cancels any
// in-flight subscriptions on logout.
type Pool struct {
	timeout time.Duration
	log     logging.Logger

	mu    sync.Mutex
	conns map[string]*nostr.Relay
}

func NewPool(timeout time.Duration, log logging.Logger) *Pool {
	return &Pool{
		timeout: timeout,
		log:     log,
		conns:   make(map[string]*nostr.Relay),
	}
}

func (p *Pool) connect(ctx context.Context, url string) (*nostr.Relay, error) {
	p.mu.Lock()
	if conn, ok := p.conns[url]; ok {
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := nostr.RelayConnect(dialCtx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.conns[url]; ok {
		// Lost the race; keep the first connection.
		_ = conn.Close()
		return existing, nil
	}
	p.conns[url] = conn
	return conn, nil
}

func (p *Pool) drop(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.conns[url]; ok {
		_ = conn.Close()
		delete(p.conns, url)
	}
}

func (p *Pool) Query(ctx context.Context, url string, filter nostr.Filter) ([]*nostr.Event, error) {
	conn, err := p.connect(ctx, url)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	events, err := conn.QuerySync(opCtx, filter)
	if err != nil {
		p.drop(url)
		return nil, fmt.Errorf("querying %s: %w", url, err)
	}
	return events, nil
}

func (p *Pool) Publish(ctx context.Context, url string, ev nostr.Event) error {
	conn, err := p.connect(ctx, url)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := conn.Publish(opCtx, ev); err != nil {
		p.drop(url)
		return fmt.Errorf("publishing to %s: %w", url, err)
	}
	return nil
}

// Close disconnects every relay in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, conn := range p.conns {
		_ = conn.Close()
		delete(p.conns, url)
	}
}
