package session

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostatus/internal/cache"
	"nostatus/internal/config"
	"nostatus/internal/logging"
	"nostatus/internal/models"
	"nostatus/internal/relay/relaytest"
	"nostatus/internal/resolver"
	"nostatus/internal/vault"
)

type testEnv struct {
	cfg    *config.Config
	client *relaytest.FakeClient
	store  *cache.Store
	sess   *Session
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.CachePath = filepath.Join(dir, "cache.db")
	cfg.KeyRecordPath = filepath.Join(dir, "key.json")
	cfg.LegacyCacheDir = filepath.Join(dir, "cache")
	cfg.DiscoverRelays = []string{"wss://discover"}
	cfg.DefaultRelays = []string{"wss://default"}

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	store, err := cache.Open(context.Background(), cfg.CachePath, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := relaytest.New()
	return &testEnv{cfg: cfg, client: client, store: store, sess: New(cfg, client, store, log)}
}

func (e *testEnv) register(t *testing.T, passphrase string) {
	t.Helper()
	require.NoError(t, e.sess.Register(context.Background(), "", []byte(passphrase)))
}

func newIdentity(t *testing.T) (sk, pk string) {
	t.Helper()
	sk = nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	return sk, pk
}

func signedEvent(t *testing.T, sk string, kind int, content string, tags nostr.Tags, at nostr.Timestamp) *nostr.Event {
	t.Helper()
	ev := &nostr.Event{Kind: kind, CreatedAt: at, Content: content, Tags: tags}
	require.NoError(t, ev.Sign(sk))
	return ev
}

func TestRegisterAndUnlock(t *testing.T) {
	env := newEnv(t)
	env.register(t, "correct horse")

	assert.True(t, env.sess.Unlocked())
	assert.True(t, models.IsValidPubKey(env.sess.PubKey()))
	assert.Equal(t, ErrAlreadyRegistered, env.sess.Register(context.Background(), "", []byte("x")))

	pubKey := env.sess.PubKey()
	env.sess.Logout()
	assert.False(t, env.sess.Unlocked())
	assert.Empty(t, env.sess.PubKey())

	err := env.sess.Unlock(context.Background(), []byte("wrong"))
	require.ErrorIs(t, err, vault.ErrIncorrectPassphrase)
	assert.False(t, env.sess.Unlocked())

	require.NoError(t, env.sess.Unlock(context.Background(), []byte("correct horse")))
	assert.True(t, env.sess.Unlocked())
	assert.Equal(t, pubKey, env.sess.PubKey())
}

func TestUnlock_NoRecord(t *testing.T) {
	env := newEnv(t)
	err := env.sess.Unlock(context.Background(), []byte("pw"))
	require.ErrorIs(t, err, vault.ErrNoRecord)
}

func TestPublishStatus(t *testing.T) {
	env := newEnv(t)
	def := env.client.Add("wss://default", nil)
	env.register(t, "pw")

	ev, err := env.sess.PublishStatus(context.Background(), "at the keyboard", "", "")
	require.NoError(t, err)
	assert.Equal(t, env.sess.PubKey(), ev.PubKey)
	assert.Equal(t, "general", models.StatusDiscriminator(ev))
	require.Len(t, def.Published, 1)

	// Music status with a link lands as a separate replaceable key.
	ev, err = env.sess.PublishStatus(context.Background(), "Intergalactic", "music", "https://example.com/track")
	require.NoError(t, err)
	assert.Equal(t, "music", models.StatusDiscriminator(ev))
	link := ""
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "r" {
			link = tag[1]
		}
	}
	assert.Equal(t, "https://example.com/track", link)

	tl, err := env.sess.CurrentTimeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tl.Len())
}

func TestPublishStatus_Limits(t *testing.T) {
	env := newEnv(t)
	env.client.Add("wss://default", nil)

	_, err := env.sess.PublishStatus(context.Background(), "hi", "", "")
	require.ErrorIs(t, err, ErrNotUnlocked)

	env.register(t, "pw")

	_, err = env.sess.PublishStatus(context.Background(), strings.Repeat("x", 141), "", "")
	require.ErrorIs(t, err, ErrStatusTooLong)

	// 140 multibyte runes are fine; the limit counts runes, not bytes.
	_, err = env.sess.PublishStatus(context.Background(), strings.Repeat("あ", 140), "", "")
	require.NoError(t, err)
}

func TestFollowUnfollow(t *testing.T) {
	env := newEnv(t)
	def := env.client.Add("wss://default", nil)
	env.register(t, "pw")

	_, other := newIdentity(t)

	require.NoError(t, env.sess.Follow(context.Background(), other))
	assert.True(t, env.sess.Follows().Contains(other))
	require.Len(t, def.Published, 1)
	assert.Equal(t, nostr.KindFollowList, def.Published[0].Kind)

	// Idempotent: no second event for an identity already followed.
	require.NoError(t, env.sess.Follow(context.Background(), other))
	assert.Len(t, def.Published, 1)

	require.NoError(t, env.sess.Unfollow(context.Background(), other))
	assert.False(t, env.sess.Follows().Contains(other))

	require.ErrorIs(t, env.sess.Unfollow(context.Background(), other), ErrNotFollowing)
	assert.Error(t, env.sess.Follow(context.Background(), "not-a-pubkey"))
}

func TestFollowListSurvivesRelayOutage(t *testing.T) {
	env := newEnv(t)
	def := env.client.Add("wss://default", nil)
	env.register(t, "pw")

	_, other := newIdentity(t)
	require.NoError(t, env.sess.Follow(context.Background(), other))

	// Relock with every relay down: the cached follow list still loads.
	env.sess.Logout()
	def.QueryErr = relaytest.ErrUnreachable
	require.NoError(t, env.sess.Unlock(context.Background(), []byte("pw")))
	assert.True(t, env.sess.Follows().Contains(other))
}

func TestRefreshTimeline(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	def := env.client.Add("wss://default", nil)
	env.register(t, "pw")

	skA, pkA := newIdentity(t)
	skB, pkB := newIdentity(t)

	// A advertises a personal relay via the discover relay; B has no
	// relay list and is read from the defaults.
	env.client.Add("wss://discover", &relaytest.FakeRelay{Events: []*nostr.Event{
		signedEvent(t, skA, nostr.KindRelayListMetadata, "",
			models.RelayListFromURLs(pkA, []string{"wss://relay-a"}).Tags(), 10),
	}})
	relayA := env.client.Add("wss://relay-a", &relaytest.FakeRelay{Events: []*nostr.Event{
		signedEvent(t, skA, models.KindUserStatus, "reading",
			nostr.Tags{{"d", "general"}}, 200),
	}})
	def.Events = append(def.Events, signedEvent(t, skB, models.KindUserStatus, "walking",
		nostr.Tags{{"d", "general"}}, 100))

	require.NoError(t, env.sess.Follow(ctx, pkA))
	require.NoError(t, env.sess.Follow(ctx, pkB))

	tl, report, err := env.sess.RefreshTimeline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RelaysFailed)
	assert.Equal(t, 2, report.EventsMerged)

	posts := tl.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "reading", posts[0].Content)
	assert.Equal(t, "walking", posts[1].Content)

	// A's personal relay was consulted for A's status.
	assert.GreaterOrEqual(t, relayA.QueryCalls, 1)

	// A republished stale copy never rolls the timeline back.
	relayA.Events = []*nostr.Event{signedEvent(t, skA, models.KindUserStatus, "stale",
		nostr.Tags{{"d", "general"}}, 50)}
	tl, report, err = env.sess.RefreshTimeline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.EventsMerged)
	assert.Equal(t, "reading", tl.Get(pkA, "general").Content)
}

func TestRefreshTimeline_Locked(t *testing.T) {
	env := newEnv(t)
	_, _, err := env.sess.RefreshTimeline(context.Background())
	require.ErrorIs(t, err, ErrNotUnlocked)
}

func TestEditRelayList(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	def := env.client.Add("wss://default", nil)
	mine := env.client.Add("wss://mine", nil)
	env.register(t, "pw")

	assert.Equal(t, resolver.StateUnresolved, env.sess.RelayState())

	err := env.sess.EditRelayList(ctx, []models.RelayDescriptor{
		{URL: "wss://mine", Read: true, Write: true},
	})
	require.NoError(t, err)
	assert.Equal(t, resolver.StateResolved, env.sess.RelayState())

	// Old and new write relays both received the relay list event.
	require.Len(t, def.Published, 1)
	require.Len(t, mine.Published, 1)
	assert.Equal(t, nostr.KindRelayListMetadata, def.Published[0].Kind)

	// Subsequent publishes go to the new relay only.
	_, err = env.sess.PublishStatus(ctx, "moved in", "", "")
	require.NoError(t, err)
	assert.Len(t, def.Published, 1)
	assert.Len(t, mine.Published, 2)
}

func TestProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.client.Add("wss://default", nil)
	env.register(t, "pw")

	require.NoError(t, env.sess.UpdateProfile(ctx, models.ProfileMetadata{
		Name:  "snowdrop",
		About: "status enthusiast",
	}))

	got, err := env.sess.FetchProfile(ctx, env.sess.PubKey())
	require.NoError(t, err)
	assert.Equal(t, "snowdrop", got.Name)
}

func TestFetchProfile_FromRelay(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.client.Add("wss://discover", nil)
	env.register(t, "pw")

	skA, pkA := newIdentity(t)
	env.client.Add("wss://default", &relaytest.FakeRelay{Events: []*nostr.Event{
		signedEvent(t, skA, nostr.KindProfileMetadata, `{"name":"alice"}`, nil, 100),
	}})

	got, err := env.sess.FetchProfile(ctx, pkA)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)

	// Cached now; a dead network no longer matters.
	env.client.Add("wss://default", &relaytest.FakeRelay{QueryErr: relaytest.ErrUnreachable})
	got, err = env.sess.FetchProfile(ctx, pkA)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
}

func TestFetchProfile_CanceledContext(t *testing.T) {
	env := newEnv(t)
	env.client.Add("wss://default", nil)
	env.client.Add("wss://discover", nil)
	env.register(t, "pw")

	_, pk := newIdentity(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.sess.FetchProfile(ctx, pk)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchProfile_NotFound(t *testing.T) {
	env := newEnv(t)
	env.client.Add("wss://default", nil)
	env.client.Add("wss://discover", nil)
	env.register(t, "pw")

	_, pk := newIdentity(t)
	_, err := env.sess.FetchProfile(context.Background(), pk)
	require.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRotatePassphrase(t *testing.T) {
	env := newEnv(t)
	env.register(t, "old pw")
	pubKey := env.sess.PubKey()
	env.sess.Logout()

	require.NoError(t, env.sess.RotatePassphrase([]byte("old pw"), []byte("new pw")))

	err := env.sess.Unlock(context.Background(), []byte("old pw"))
	require.ErrorIs(t, err, vault.ErrIncorrectPassphrase)

	require.NoError(t, env.sess.Unlock(context.Background(), []byte("new pw")))
	assert.Equal(t, pubKey, env.sess.PubKey())
}
