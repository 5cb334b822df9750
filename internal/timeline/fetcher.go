package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/semaphore"

	"nostatus/internal/cache"
	"nostatus/internal/logging"
	"nostatus/internal/models"
	"nostatus/internal/relay"
)

// statusQueryLimit bounds how many status events one relay is asked for.
const statusQueryLimit = 20

// FetchReport describes one fetch run for observability: how many relays
// were skipped and how many events were discarded, without failing the
// call.
type FetchReport struct {
	RunID             string
	RelaysQueried     int
	RelaysFailed      int
	FailedRelays      []string
	InvalidSignatures int
	EventsMerged      int
}

type Fetcher struct {
	client      relay.Client
	store       *cache.Store
	log         logging.Logger
	maxParallel int64
}

func NewFetcher(client relay.Client, store *cache.Store, log logging.Logger, maxParallel int) *Fetcher {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Fetcher{client: client, store: store, log: log, maxParallel: int64(maxParallel)}
}

func statusCacheKey(author, discriminator string) string {
	return author + "|" + discriminator
}

// LoadCached rebuilds a timeline from the cache store. Entries that fail
// to decode are skipped; they were validated before being written.
func (f *Fetcher) LoadCached(ctx context.Context) (*Timeline, error) {
	entries, err := f.store.List(ctx, cache.KindStatus)
	if err != nil {
		return nil, fmt.Errorf("loading cached timeline: %w", err)
	}

	tl := New()
	for _, e := range entries {
		var ev nostr.Event
		if err := json.Unmarshal(e.Value, &ev); err != nil {
			f.log.Warn(ctx, "corrupt cached status entry", "key", e.Key, "error", err)
			continue
		}
		tl.Merge(&ev)
	}
	return tl, nil
}

// FetchFollowedStatuses queries every relay in the plan for the status
// events of its assigned authors, concurrently with bounded parallelism,
// and merges the results into the cached timeline. A relay that fails or
// returns garbage is skipped and counted; the call fails only when every
// relay in the plan failed. Merged winners are written through to the
// cache, one atomic put per key.
func (f *Fetcher) FetchFollowedStatuses(ctx context.Context, plan map[string][]string) (*Timeline, *FetchReport, error) {
	report := &FetchReport{RunID: uuid.NewString(), RelaysQueried: len(plan)}
	log := f.log.With("run_id", report.RunID)

	tl, err := f.LoadCached(ctx)
	if err != nil {
		log.Warn(ctx, "starting from empty timeline", "error", err)
		tl = New()
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		changed = make(map[Key]struct{})
	)
	sem := semaphore.NewWeighted(f.maxParallel)

	for url, authors := range plan {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(url string, authors []string) {
			defer wg.Done()
			defer sem.Release(1)

			filter := nostr.Filter{
				Kinds:   []int{models.KindUserStatus},
				Authors: authors,
				Limit:   statusQueryLimit,
			}
			events, err := f.client.Query(ctx, url, filter)
			if err != nil {
				log.Warn(ctx, "relay skipped", "relay", url, "error", err)
				mu.Lock()
				report.RelaysFailed++
				report.FailedRelays = append(report.FailedRelays, url)
				mu.Unlock()
				return
			}

			assigned := make(map[string]struct{}, len(authors))
			for _, a := range authors {
				assigned[a] = struct{}{}
			}

			for _, ev := range events {
				if ev.Kind != models.KindUserStatus {
					continue
				}
				if _, ok := assigned[ev.PubKey]; !ok {
					continue
				}
				if ok, err := ev.CheckSignature(); err != nil || !ok {
					mu.Lock()
					report.InvalidSignatures++
					mu.Unlock()
					continue
				}
				if tl.Merge(ev) {
					mu.Lock()
					changed[Key{Author: ev.PubKey, Discriminator: models.StatusDiscriminator(ev)}] = struct{}{}
					mu.Unlock()
				}
			}
		}(url, authors)
	}
	wg.Wait()

	if len(plan) > 0 && report.RelaysFailed == len(plan) {
		return nil, report, fmt.Errorf("%w: all %d relays unreachable", ErrTimelineFetchFailed, len(plan))
	}

	for key := range changed {
		ev := tl.Get(key.Author, key.Discriminator)
		if ev == nil {
			continue
		}
		value, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := f.store.Put(ctx, cache.KindStatus, statusCacheKey(key.Author, key.Discriminator), value); err != nil {
			log.Warn(ctx, "caching status failed", "author", key.Author, "error", err)
		}
	}
	report.EventsMerged = len(changed)

	log.Debug(ctx, "timeline fetch finished",
		"relays", report.RelaysQueried,
		"failed", report.RelaysFailed,
		"merged", report.EventsMerged,
		"bad_signatures", report.InvalidSignatures)
	return tl, report, nil
}

// PublishStatus builds, signs and publishes a replaceable status event to
// the given write relays. At least one acknowledgement makes the publish
// a success; when every relay refuses, the per-relay outcomes are
// returned in a PublishError. The signed event is also written through to
// the local cache.
func (f *Fetcher) PublishStatus(ctx context.Context, secretKey, content, discriminator string, extraTags nostr.Tags, writeRelays []string) (*nostr.Event, error) {
	if len(writeRelays) == 0 {
		return nil, ErrNoWriteRelays
	}
	if discriminator == "" {
		discriminator = models.DiscriminatorGeneral
	}

	ev := nostr.Event{
		Kind:      models.KindUserStatus,
		CreatedAt: nostr.Now(),
		Content:   content,
		Tags:      append(nostr.Tags{{"d", discriminator}}, extraTags...),
	}
	if err := ev.Sign(secretKey); err != nil {
		return nil, fmt.Errorf("signing status event: %w", err)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		acked    int
		outcomes []RelayOutcome
	)
	sem := semaphore.NewWeighted(f.maxParallel)

	for _, url := range writeRelays {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer sem.Release(1)

			err := f.client.Publish(ctx, url, ev)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.log.Warn(ctx, "publish rejected", "relay", url, "error", err)
				outcomes = append(outcomes, RelayOutcome{URL: url, Err: err})
				return
			}
			acked++
		}(url)
	}
	wg.Wait()

	if acked == 0 {
		return nil, &PublishError{Outcomes: outcomes}
	}

	value, err := json.Marshal(ev)
	if err == nil {
		if err := f.store.Put(ctx, cache.KindStatus, statusCacheKey(ev.PubKey, discriminator), value); err != nil {
			f.log.Warn(ctx, "caching own status failed", "error", err)
		}
	}
	return &ev, nil
}
