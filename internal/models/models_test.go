package models

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pkA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const pkB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

func TestParseRelayList(t *testing.T) {
	ev := &nostr.Event{
		PubKey:    pkA,
		CreatedAt: 100,
		Kind:      nostr.KindRelayListMetadata,
		Tags: nostr.Tags{
			{"r", "wss://both.example"},
			{"r", "wss://reader.example", "read"},
			{"r", "wss://writer.example", "write"},
			{"r", ""},
			{"e", "something-else"},
		},
	}

	list := ParseRelayList(ev)
	require.Equal(t, pkA, list.PubKey)
	require.Equal(t, nostr.Timestamp(100), list.UpdatedAt)
	require.Equal(t, []RelayDescriptor{
		{URL: "wss://both.example", Read: true, Write: true},
		{URL: "wss://reader.example", Read: true, Write: false},
		{URL: "wss://writer.example", Read: false, Write: true},
	}, list.Relays)

	assert.Equal(t, []string{"wss://both.example", "wss://reader.example"}, list.ReadURLs())
	assert.Equal(t, []string{"wss://both.example", "wss://writer.example"}, list.WriteURLs())
}

func TestRelayList_TagsRoundTrip(t *testing.T) {
	list := RelayList{PubKey: pkA, Relays: []RelayDescriptor{
		{URL: "wss://both.example", Read: true, Write: true},
		{URL: "wss://reader.example", Read: true},
		{URL: "wss://writer.example", Write: true},
	}}

	ev := &nostr.Event{PubKey: pkA, Tags: list.Tags()}
	back := ParseRelayList(ev)
	assert.Equal(t, list.Relays, back.Relays)
}

func TestParseFollowList_DedupsAndValidates(t *testing.T) {
	ev := &nostr.Event{
		PubKey:    pkA,
		CreatedAt: 42,
		Kind:      nostr.KindFollowList,
		Tags: nostr.Tags{
			{"p", pkB},
			{"p", pkB},
			{"p", "not-a-key"},
			{"r", "wss://relay.example"},
		},
	}

	list := ParseFollowList(ev)
	require.Equal(t, []string{pkB}, list.Follows)
	assert.True(t, list.Contains(pkB))
	assert.False(t, list.Contains(pkA))
}

func TestStatusDiscriminator(t *testing.T) {
	withD := &nostr.Event{Tags: nostr.Tags{{"d", "music"}}}
	assert.Equal(t, "music", StatusDiscriminator(withD))

	withoutD := &nostr.Event{}
	assert.Equal(t, DiscriminatorGeneral, StatusDiscriminator(withoutD))
}

func TestIsValidPubKey(t *testing.T) {
	assert.True(t, IsValidPubKey(pkA))
	assert.False(t, IsValidPubKey("short"))
	assert.False(t, IsValidPubKey(pkA[:63]+"G"))
}

func TestProfileMetadata_FlattenRoundTrip(t *testing.T) {
	raw := `{"name":"alice","about":"hi","nip05":"alice@example.com","custom_field":{"x":1}}`

	var p ProfileMetadata
	require.NoError(t, p.UnmarshalJSON([]byte(raw)))
	assert.Equal(t, "alice", p.Name)
	assert.Equal(t, "alice@example.com", p.NIP05)
	require.Contains(t, p.Extra, "custom_field")

	out, err := p.MarshalJSON()
	require.NoError(t, err)

	var back ProfileMetadata
	require.NoError(t, back.UnmarshalJSON(out))
	assert.Equal(t, p.Name, back.Name)
	assert.Contains(t, back.Extra, "custom_field")
}

func TestParseProfile_BadContent(t *testing.T) {
	ev := &nostr.Event{PubKey: pkA, Content: "{not json"}
	_, err := ParseProfile(ev)
	require.Error(t, err)
}
