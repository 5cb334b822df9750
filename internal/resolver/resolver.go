// Package resolver determines, for the local user and for each followed
// account, the authoritative relay set to read from and write to
// (NIP-65). Resolution is an explicit state machine per identity:
// Unresolved -> Resolving -> Resolved(list) | Fallback(defaults).
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/semaphore"

	"nostatus/internal/cache"
	"nostatus/internal/logging"
	"nostatus/internal/models"
	"nostatus/internal/relay"
)

// ErrNoConnectableRelays is returned when neither the cached relay list
// nor the bootstrap set yields a single live connection.
var ErrNoConnectableRelays = errors.New("no connectable relays")

type State int

const (
	StateUnresolved State = iota
	StateResolving
	StateResolved
	StateFallback
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of resolving one identity.
type Resolution struct {
	PubKey string
	State  State
	Relays models.RelayList
}

type Resolver struct {
	client      relay.Client
	store       *cache.Store
	log         logging.Logger
	bootstrap   []string
	defaults    []string
	maxParallel int64
}

// New builds a Resolver. bootstrap are the discover relays queried for
// relay-list events; defaults is the fallback set used when an identity
// has not published a relay list.
func New(client relay.Client, store *cache.Store, log logging.Logger, bootstrap, defaults []string, maxParallel int) *Resolver {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Resolver{
		client:      client,
		store:       store,
		log:         log,
		bootstrap:   bootstrap,
		defaults:    defaults,
		maxParallel: int64(maxParallel),
	}
}

func (r *Resolver) cachedList(ctx context.Context, pubkey string) (models.RelayList, bool) {
	entry, err := r.store.Get(ctx, cache.KindRelayList, pubkey)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			r.log.Warn(ctx, "unreadable cached relay list", "pubkey", pubkey, "error", err)
		}
		return models.RelayList{}, false
	}
	var list models.RelayList
	if err := json.Unmarshal(entry.Value, &list); err != nil {
		r.log.Warn(ctx, "corrupt cached relay list", "pubkey", pubkey, "error", err)
		return models.RelayList{}, false
	}
	return list, true
}

func (r *Resolver) storeList(ctx context.Context, list models.RelayList) {
	value, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := r.store.Put(ctx, cache.KindRelayList, list.PubKey, value); err != nil {
		r.log.Warn(ctx, "caching relay list failed", "pubkey", list.PubKey, "error", err)
	}
}

// ResolveOwn resolves the relay list for one identity. It starts from the
// cached list when present, queries the candidate relays for the latest
// kind-10002 event, applies last-write-wins against the cache, and falls
// back to the configured defaults when no list exists anywhere. It fails
// with ErrNoConnectableRelays only when no candidate relay answered at
// all and nothing was cached.
func (r *Resolver) ResolveOwn(ctx context.Context, pubkey string) (*Resolution, error) {
	res := &Resolution{PubKey: pubkey, State: StateResolving}

	cached, hasCached := r.cachedList(ctx, pubkey)

	// Query the previously known read relays first, then the bootstrap
	// set, skipping duplicates.
	var candidates []string
	seen := make(map[string]struct{})
	for _, url := range append(cached.ReadURLs(), r.bootstrap...) {
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		candidates = append(candidates, url)
	}

	filter := nostr.Filter{
		Kinds:   []int{nostr.KindRelayListMetadata},
		Authors: []string{pubkey},
		Limit:   1,
	}

	var (
		mu        sync.Mutex
		reachable int
		newest    *nostr.Event
		wg        sync.WaitGroup
	)
	sem := semaphore.NewWeighted(r.maxParallel)

	for _, url := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer sem.Release(1)

			events, err := r.client.Query(ctx, url, filter)
			if err != nil {
				r.log.Warn(ctx, "relay list query failed", "relay", url, "pubkey", pubkey, "error", err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			reachable++
			for _, ev := range events {
				if ev.Kind != nostr.KindRelayListMetadata || ev.PubKey != pubkey {
					continue
				}
				if ok, err := ev.CheckSignature(); err != nil || !ok {
					r.log.Warn(ctx, "relay list with bad signature", "relay", url, "pubkey", pubkey)
					continue
				}
				if newest == nil || ev.CreatedAt > newest.CreatedAt ||
					(ev.CreatedAt == newest.CreatedAt && ev.ID > newest.ID) {
					newest = ev
				}
			}
		}(url)
	}
	wg.Wait()

	if reachable == 0 && !hasCached {
		return nil, ErrNoConnectableRelays
	}

	switch {
	case newest != nil && (!hasCached || newest.CreatedAt > cached.UpdatedAt):
		res.State = StateResolved
		res.Relays = models.ParseRelayList(newest)
		r.storeList(ctx, res.Relays)
	case hasCached && len(cached.Relays) > 0:
		res.State = StateResolved
		res.Relays = cached
	default:
		res.State = StateFallback
		res.Relays = models.RelayListFromURLs(pubkey, r.defaults)
	}
	return res, nil
}

// ResolveMany resolves several identities concurrently with bounded
// parallelism. One identity's failure never aborts the others: an
// unresolvable identity simply falls back to the default relay set.
func (r *Resolver) ResolveMany(ctx context.Context, pubkeys []string) map[string]*Resolution {
	results := make(map[string]*Resolution, len(pubkeys))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := semaphore.NewWeighted(r.maxParallel)

	for _, pk := range pubkeys {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(pk string) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := r.ResolveOwn(ctx, pk)
			if err != nil {
				r.log.Warn(ctx, "relay resolution failed, using defaults", "pubkey", pk, "error", err)
				res = &Resolution{
					PubKey: pk,
					State:  StateFallback,
					Relays: models.RelayListFromURLs(pk, r.defaults),
				}
			}

			mu.Lock()
			results[pk] = res
			mu.Unlock()
		}(pk)
	}
	wg.Wait()

	return results
}

// BuildFetchPlan inverts per-identity read-relay sets into a
// relay-centric plan: each relay url maps to the authors known to publish
// there, so every relay is dialed once. Relays an identity cannot be read
// from are excluded for that identity.
func BuildFetchPlan(resolutions map[string]*Resolution) map[string][]string {
	plan := make(map[string][]string)
	for pk, res := range resolutions {
		if res == nil {
			continue
		}
		for _, url := range res.Relays.ReadURLs() {
			plan[url] = append(plan[url], pk)
		}
	}
	for url, authors := range plan {
		sort.Strings(authors)
		deduped := authors[:0]
		var last string
		for _, a := range authors {
			if len(deduped) > 0 && a == last {
				continue
			}
			deduped = append(deduped, a)
			last = a
		}
		plan[url] = deduped
	}
	return plan
}
