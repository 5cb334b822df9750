// Package session is the facade tying the key vault, cache, relay
// resolver and timeline fetcher into the operations a UI calls: register,
// unlock, refresh, publish, follow. All state behind the facade is owned
// by it; callers never touch the secret key directly.
package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/nbd-wtf/go-nostr"

	"nostatus/internal/cache"
	"nostatus/internal/config"
	"nostatus/internal/logging"
	"nostatus/internal/models"
	"nostatus/internal/relay"
	"nostatus/internal/resolver"
	"nostatus/internal/timeline"
	"nostatus/internal/vault"
)

// maxStatusLength is the rune limit for published status text.
const maxStatusLength = 140

type Session struct {
	cfg      *config.Config
	client   relay.Client
	store    *cache.Store
	log      logging.Logger
	resolver *resolver.Resolver
	fetcher  *timeline.Fetcher

	mu        sync.Mutex
	unlocked  bool
	secretKey string
	pubKey    string
	ownRelays *resolver.Resolution
	follows   models.FollowList
}

func New(cfg *config.Config, client relay.Client, store *cache.Store, log logging.Logger) *Session {
	return &Session{
		cfg:      cfg,
		client:   client,
		store:    store,
		log:      log,
		resolver: resolver.New(client, store, log, cfg.DiscoverRelays, cfg.DefaultRelays, cfg.MaxParallel),
		fetcher:  timeline.NewFetcher(client, store, log, cfg.MaxParallel),
	}
}

// Registered reports whether a key record already exists on disk.
func (s *Session) Registered() bool {
	_, err := vault.LoadRecord(s.cfg.KeyRecordPath)
	return err == nil
}

// Register encrypts secretKeyHex under passphrase and writes the key
// record. An empty secretKeyHex generates a fresh key. The session comes
// up unlocked on success.
func (s *Session) Register(ctx context.Context, secretKeyHex string, passphrase []byte) error {
	if s.Registered() {
		return ErrAlreadyRegistered
	}

	if secretKeyHex == "" {
		secretKeyHex = nostr.GeneratePrivateKey()
	}
	pubKey, err := nostr.GetPublicKey(secretKeyHex)
	if err != nil {
		return fmt.Errorf("%w: %v", vault.ErrInvalidKeyFormat, err)
	}

	skBytes, err := hex.DecodeString(secretKeyHex)
	if err != nil {
		return fmt.Errorf("%w: %v", vault.ErrInvalidKeyFormat, err)
	}
	defer vault.Wipe(skBytes)

	rec, err := vault.Register(skBytes, passphrase)
	if err != nil {
		return err
	}
	if err := vault.SaveRecord(s.cfg.KeyRecordPath, rec); err != nil {
		return fmt.Errorf("saving key record: %w", err)
	}

	s.mu.Lock()
	s.unlocked = true
	s.secretKey = secretKeyHex
	s.pubKey = pubKey
	s.mu.Unlock()

	s.bootstrapIdentity(ctx)
	return nil
}

// Unlock opens the key record with passphrase and brings the session
// online: legacy cache data is migrated once, the own relay list is
// resolved and the follow list refreshed. Network trouble during
// bootstrap is tolerated; the session still unlocks with cached data.
func (s *Session) Unlock(ctx context.Context, passphrase []byte) error {
	rec, err := vault.LoadRecord(s.cfg.KeyRecordPath)
	if err != nil {
		return err
	}

	skBytes, err := vault.Unlock(rec, passphrase)
	if err != nil {
		return err
	}
	secretKeyHex := hex.EncodeToString(skBytes)
	vault.Wipe(skBytes)

	pubKey, err := nostr.GetPublicKey(secretKeyHex)
	if err != nil {
		return fmt.Errorf("%w: %v", vault.ErrInvalidKeyFormat, err)
	}

	s.mu.Lock()
	s.unlocked = true
	s.secretKey = secretKeyHex
	s.pubKey = pubKey
	s.mu.Unlock()

	if report, err := s.store.MigrateFromLegacy(ctx, s.cfg.LegacyCacheDir); err != nil {
		s.log.Warn(ctx, "legacy cache migration failed", "error", err)
	} else if !report.AlreadyDone && report.Migrated > 0 {
		s.log.Info(ctx, "legacy cache migrated", "entries", report.Migrated, "failed", report.Failed)
	}

	s.bootstrapIdentity(ctx)
	return nil
}

// bootstrapIdentity resolves the own relay list and loads the follow
// list, preferring fresh relay data but falling back to the cache.
func (s *Session) bootstrapIdentity(ctx context.Context) {
	pubKey := s.PubKey()

	res, err := s.resolver.ResolveOwn(ctx, pubKey)
	if err != nil {
		s.log.Warn(ctx, "relay list resolution failed", "error", err)
	} else {
		s.mu.Lock()
		s.ownRelays = res
		s.mu.Unlock()
	}

	follows, err := s.refreshFollowList(ctx)
	if err != nil {
		s.log.Warn(ctx, "follow list refresh failed", "error", err)
		follows, _ = s.cachedFollowList(ctx, pubKey)
	}
	s.mu.Lock()
	s.follows = follows
	s.mu.Unlock()
}

func (s *Session) cachedFollowList(ctx context.Context, pubKey string) (models.FollowList, bool) {
	entry, err := s.store.Get(ctx, cache.KindFollowList, pubKey)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.log.Warn(ctx, "unreadable cached follow list", "error", err)
		}
		return models.FollowList{PubKey: pubKey}, false
	}
	var list models.FollowList
	if err := json.Unmarshal(entry.Value, &list); err != nil {
		s.log.Warn(ctx, "corrupt cached follow list", "error", err)
		return models.FollowList{PubKey: pubKey}, false
	}
	return list, true
}

func (s *Session) storeFollowList(ctx context.Context, list models.FollowList) {
	value, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := s.store.Put(ctx, cache.KindFollowList, list.PubKey, value); err != nil {
		s.log.Warn(ctx, "caching follow list failed", "error", err)
	}
}

// refreshFollowList queries the own read relays for the latest kind-3
// event and applies last-write-wins against the cached list.
func (s *Session) refreshFollowList(ctx context.Context) (models.FollowList, error) {
	pubKey := s.PubKey()
	cached, hasCached := s.cachedFollowList(ctx, pubKey)

	filter := nostr.Filter{
		Kinds:   []int{nostr.KindFollowList},
		Authors: []string{pubKey},
		Limit:   1,
	}

	var newest *nostr.Event
	reachable := 0
	for _, url := range s.readRelays() {
		events, err := s.client.Query(ctx, url, filter)
		if err != nil {
			s.log.Warn(ctx, "relay skipped", "relay", url, "error", err)
			continue
		}
		reachable++
		for _, ev := range events {
			if ev.Kind != nostr.KindFollowList || ev.PubKey != pubKey {
				continue
			}
			if ok, err := ev.CheckSignature(); err != nil || !ok {
				continue
			}
			if newest == nil || ev.CreatedAt > newest.CreatedAt {
				newest = ev
			}
		}
	}

	if reachable == 0 && !hasCached {
		return models.FollowList{}, fmt.Errorf("refreshing follow list: %w", resolver.ErrNoConnectableRelays)
	}
	if newest == nil || (hasCached && newest.CreatedAt <= cached.UpdatedAt) {
		return cached, nil
	}

	list := models.ParseFollowList(newest)
	s.storeFollowList(ctx, list)
	return list, nil
}

// CurrentTimeline returns the cached timeline without touching any relay.
func (s *Session) CurrentTimeline(ctx context.Context) (*timeline.Timeline, error) {
	return s.fetcher.LoadCached(ctx)
}

// RefreshTimeline resolves relay lists for every followed identity plus
// the user themselves, builds a relay-to-authors fetch plan, and fetches
// status events from it.
func (s *Session) RefreshTimeline(ctx context.Context) (*timeline.Timeline, *timeline.FetchReport, error) {
	if !s.Unlocked() {
		return nil, nil, ErrNotUnlocked
	}

	s.mu.Lock()
	authors := append([]string{s.pubKey}, s.follows.Follows...)
	own := s.ownRelays
	s.mu.Unlock()

	resolutions := s.resolver.ResolveMany(ctx, authors)
	if own != nil {
		resolutions[own.PubKey] = own
	}
	plan := resolver.BuildFetchPlan(resolutions)
	return s.fetcher.FetchFollowedStatuses(ctx, plan)
}

// PublishStatus signs and publishes a status with the given text and
// discriminator ("" means the general status). A non-empty linkURL is
// attached as an "r" tag.
func (s *Session) PublishStatus(ctx context.Context, content, discriminator, linkURL string) (*nostr.Event, error) {
	if !s.Unlocked() {
		return nil, ErrNotUnlocked
	}
	if utf8.RuneCountInString(content) > maxStatusLength {
		return nil, ErrStatusTooLong
	}

	var extra nostr.Tags
	if linkURL != "" {
		extra = nostr.Tags{{"r", linkURL}}
	}
	return s.fetcher.PublishStatus(ctx, s.sk(), content, discriminator, extra, s.writeRelays())
}

// EditRelayList publishes a new relay list and updates the cached one.
// The event goes to the union of the old and new write relays so that
// relays being dropped still learn about the change.
func (s *Session) EditRelayList(ctx context.Context, relays []models.RelayDescriptor) error {
	if !s.Unlocked() {
		return ErrNotUnlocked
	}

	list := models.RelayList{PubKey: s.PubKey(), Relays: relays, UpdatedAt: nostr.Now()}

	targets := unionURLs(s.writeRelays(), list.WriteURLs())
	ev, err := s.publishEvent(ctx, nostr.KindRelayListMetadata, "", list.Tags(), targets)
	if err != nil {
		return err
	}

	list.UpdatedAt = ev.CreatedAt
	value, err := json.Marshal(list)
	if err == nil {
		if err := s.store.Put(ctx, cache.KindRelayList, list.PubKey, value); err != nil {
			s.log.Warn(ctx, "caching relay list failed", "error", err)
		}
	}

	s.mu.Lock()
	s.ownRelays = &resolver.Resolution{PubKey: list.PubKey, State: resolver.StateResolved, Relays: list}
	s.mu.Unlock()
	return nil
}

// Follow adds pubkey to the follow list and publishes the updated kind-3
// event. Following an already-followed identity is a no-op.
func (s *Session) Follow(ctx context.Context, pubkey string) error {
	if !s.Unlocked() {
		return ErrNotUnlocked
	}
	if !models.IsValidPubKey(pubkey) {
		return fmt.Errorf("invalid pubkey %q", pubkey)
	}

	s.mu.Lock()
	list := s.follows
	s.mu.Unlock()
	if list.Contains(pubkey) {
		return nil
	}
	list.Follows = append(append([]string(nil), list.Follows...), pubkey)
	return s.publishFollowList(ctx, list)
}

// Unfollow removes pubkey from the follow list and publishes the update.
func (s *Session) Unfollow(ctx context.Context, pubkey string) error {
	if !s.Unlocked() {
		return ErrNotUnlocked
	}

	s.mu.Lock()
	list := s.follows
	s.mu.Unlock()
	if !list.Contains(pubkey) {
		return ErrNotFollowing
	}

	follows := make([]string, 0, len(list.Follows)-1)
	for _, pk := range list.Follows {
		if pk != pubkey {
			follows = append(follows, pk)
		}
	}
	list.Follows = follows
	return s.publishFollowList(ctx, list)
}

func (s *Session) publishFollowList(ctx context.Context, list models.FollowList) error {
	list.PubKey = s.PubKey()

	ev, err := s.publishEvent(ctx, nostr.KindFollowList, "", list.Tags(), s.writeRelays())
	if err != nil {
		return err
	}

	list.UpdatedAt = ev.CreatedAt
	s.storeFollowList(ctx, list)
	s.mu.Lock()
	s.follows = list
	s.mu.Unlock()
	return nil
}

// FetchProfile returns the profile for pubkey, preferring the cache and
// falling back to the identity's read relays.
func (s *Session) FetchProfile(ctx context.Context, pubkey string) (models.ProfileMetadata, error) {
	if entry, err := s.store.Get(ctx, cache.KindProfile, pubkey); err == nil {
		var p models.ProfileMetadata
		if err := json.Unmarshal(entry.Value, &p); err == nil {
			return p, nil
		}
		s.log.Warn(ctx, "corrupt cached profile", "pubkey", pubkey)
	}

	if err := ctx.Err(); err != nil {
		return models.ProfileMetadata{}, err
	}

	// Resolution can come back nil when the context is canceled mid-batch.
	var resolved []string
	if res := s.resolver.ResolveMany(ctx, []string{pubkey})[pubkey]; res != nil {
		resolved = res.Relays.ReadURLs()
	}
	urls := unionURLs(resolved, s.readRelays())

	filter := nostr.Filter{
		Kinds:   []int{nostr.KindProfileMetadata},
		Authors: []string{pubkey},
		Limit:   1,
	}

	var newest *nostr.Event
	for _, url := range urls {
		events, err := s.client.Query(ctx, url, filter)
		if err != nil {
			continue
		}
		for _, ev := range events {
			if ev.Kind != nostr.KindProfileMetadata || ev.PubKey != pubkey {
				continue
			}
			if ok, err := ev.CheckSignature(); err != nil || !ok {
				continue
			}
			if newest == nil || ev.CreatedAt > newest.CreatedAt {
				newest = ev
			}
		}
	}
	if newest == nil {
		return models.ProfileMetadata{}, fmt.Errorf("%w: %s", ErrProfileNotFound, pubkey)
	}

	profile, err := models.ParseProfile(newest)
	if err != nil {
		return models.ProfileMetadata{}, fmt.Errorf("parsing profile: %w", err)
	}
	if value, err := json.Marshal(profile); err == nil {
		if err := s.store.Put(ctx, cache.KindProfile, pubkey, value); err != nil {
			s.log.Warn(ctx, "caching profile failed", "error", err)
		}
	}
	return profile, nil
}

// UpdateProfile publishes profile as the user's new kind-0 metadata and
// writes it through to the cache.
func (s *Session) UpdateProfile(ctx context.Context, profile models.ProfileMetadata) error {
	if !s.Unlocked() {
		return ErrNotUnlocked
	}

	content, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	if _, err := s.publishEvent(ctx, nostr.KindProfileMetadata, string(content), nil, s.writeRelays()); err != nil {
		return err
	}

	if err := s.store.Put(ctx, cache.KindProfile, s.PubKey(), content); err != nil {
		s.log.Warn(ctx, "caching profile failed", "error", err)
	}
	return nil
}

// RotatePassphrase re-encrypts the key record under a new passphrase.
// The session does not need to be unlocked; the old passphrase proves
// ownership.
func (s *Session) RotatePassphrase(oldPassphrase, newPassphrase []byte) error {
	rec, err := vault.LoadRecord(s.cfg.KeyRecordPath)
	if err != nil {
		return err
	}
	rotated, err := vault.Rotate(rec, oldPassphrase, newPassphrase)
	if err != nil {
		return err
	}
	return vault.SaveRecord(s.cfg.KeyRecordPath, rotated)
}

// publishEvent signs a replaceable event and publishes it, requiring at
// least one relay acknowledgement.
func (s *Session) publishEvent(ctx context.Context, kind int, content string, tags nostr.Tags, urls []string) (*nostr.Event, error) {
	if len(urls) == 0 {
		return nil, timeline.ErrNoWriteRelays
	}

	ev := nostr.Event{
		Kind:      kind,
		CreatedAt: nostr.Now(),
		Content:   content,
		Tags:      tags,
	}
	if err := ev.Sign(s.sk()); err != nil {
		return nil, fmt.Errorf("signing event: %w", err)
	}

	acked := 0
	var outcomes []timeline.RelayOutcome
	for _, url := range urls {
		if err := s.client.Publish(ctx, url, ev); err != nil {
			s.log.Warn(ctx, "publish rejected", "relay", url, "error", err)
			outcomes = append(outcomes, timeline.RelayOutcome{URL: url, Err: err})
			continue
		}
		acked++
	}
	if acked == 0 {
		return nil, &timeline.PublishError{Outcomes: outcomes}
	}
	return &ev, nil
}

// Unlocked reports whether the signing key is available.
func (s *Session) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// PubKey returns the unlocked identity's public key, or "".
func (s *Session) PubKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pubKey
}

// Follows returns the current follow list.
func (s *Session) Follows() models.FollowList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.follows
}

// Relays returns the relay list currently in use for the unlocked
// identity; before any resolution it reflects the configured defaults.
func (s *Session) Relays() models.RelayList {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownRelays != nil {
		return s.ownRelays.Relays
	}
	return models.RelayListFromURLs(s.pubKey, s.cfg.DefaultRelays)
}

// RelayState describes how the own relay list was obtained.
func (s *Session) RelayState() resolver.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownRelays == nil {
		return resolver.StateUnresolved
	}
	return s.ownRelays.State
}

// Logout drops the in-memory key material and locks the session. The
// key record on disk is untouched.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked = false
	s.secretKey = ""
	s.pubKey = ""
	s.ownRelays = nil
	s.follows = models.FollowList{}
}

func (s *Session) sk() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secretKey
}

func (s *Session) readRelays() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownRelays != nil {
		if urls := s.ownRelays.Relays.ReadURLs(); len(urls) > 0 {
			return urls
		}
	}
	return s.cfg.DefaultRelays
}

func (s *Session) writeRelays() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownRelays != nil {
		if urls := s.ownRelays.Relays.WriteURLs(); len(urls) > 0 {
			return urls
		}
	}
	return s.cfg.DefaultRelays
}

func unionURLs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, url := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	return out
}
