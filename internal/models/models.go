// Package models holds the engine's domain types: relay lists, follow
// lists and profile metadata, plus the conversions between them and the
// protocol events that carry them. All three are replaceable per author:
// only the newest event wins (last-write-wins by created-at).
package models

import (
	"encoding/hex"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// KindUserStatus is the replaceable user-status event kind (NIP-38).
// The "d" tag discriminates status types (general, music, podcast, ...).
const KindUserStatus = 30315

// DiscriminatorGeneral is the status type assumed when an event carries
// no "d" tag.
const DiscriminatorGeneral = "general"

// RelayDescriptor is one entry of a NIP-65 relay list.
type RelayDescriptor struct {
	URL   string `json:"url"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}

// RelayList is the set of relays one identity reads from and writes to,
// versioned by the update timestamp of the event that declared it.
type RelayList struct {
	PubKey    string            `json:"pubkey"`
	Relays    []RelayDescriptor `json:"relays"`
	UpdatedAt nostr.Timestamp   `json:"updated_at"`
}

// ReadURLs returns the urls of read-enabled relays.
func (l RelayList) ReadURLs() []string {
	var urls []string
	for _, r := range l.Relays {
		if r.Read {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// WriteURLs returns the urls of write-enabled relays.
func (l RelayList) WriteURLs() []string {
	var urls []string
	for _, r := range l.Relays {
		if r.Write {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// ParseRelayList extracts a RelayList from a kind-10002 event. Each "r"
// tag names a relay url with an optional "read"/"write" marker; no marker
// means both.
func ParseRelayList(ev *nostr.Event) RelayList {
	list := RelayList{PubKey: ev.PubKey, UpdatedAt: ev.CreatedAt}
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "r" || tag[1] == "" {
			continue
		}
		desc := RelayDescriptor{URL: strings.TrimSpace(tag[1]), Read: true, Write: true}
		if len(tag) >= 3 {
			switch tag[2] {
			case "read":
				desc.Write = false
			case "write":
				desc.Read = false
			}
		}
		list.Relays = append(list.Relays, desc)
	}
	return list
}

// Tags renders the list back into "r" tags for publishing.
func (l RelayList) Tags() nostr.Tags {
	var tags nostr.Tags
	for _, r := range l.Relays {
		switch {
		case r.Read && r.Write:
			tags = append(tags, nostr.Tag{"r", r.URL})
		case r.Read:
			tags = append(tags, nostr.Tag{"r", r.URL, "read"})
		case r.Write:
			tags = append(tags, nostr.Tag{"r", r.URL, "write"})
		}
	}
	return tags
}

// RelayListFromURLs builds a read+write list from plain urls. Used for
// the configured default relay set.
func RelayListFromURLs(pubkey string, urls []string) RelayList {
	list := RelayList{PubKey: pubkey}
	for _, u := range urls {
		list.Relays = append(list.Relays, RelayDescriptor{URL: u, Read: true, Write: true})
	}
	return list
}

// FollowList is the set of identities the local user follows, versioned
// by the update timestamp of the kind-3 event that declared it.
type FollowList struct {
	PubKey    string          `json:"pubkey"`
	Follows   []string        `json:"follows"`
	UpdatedAt nostr.Timestamp `json:"updated_at"`
}

// ParseFollowList extracts followed pubkeys from a kind-3 event's "p" tags.
func ParseFollowList(ev *nostr.Event) FollowList {
	list := FollowList{PubKey: ev.PubKey, UpdatedAt: ev.CreatedAt}
	seen := make(map[string]struct{})
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "p" || !IsValidPubKey(tag[1]) {
			continue
		}
		if _, ok := seen[tag[1]]; ok {
			continue
		}
		seen[tag[1]] = struct{}{}
		list.Follows = append(list.Follows, tag[1])
	}
	return list
}

// Tags renders the follow list back into "p" tags for publishing.
func (f FollowList) Tags() nostr.Tags {
	var tags nostr.Tags
	for _, pk := range f.Follows {
		tags = append(tags, nostr.Tag{"p", pk})
	}
	return tags
}

// Contains reports whether pubkey is in the follow list.
func (f FollowList) Contains(pubkey string) bool {
	for _, pk := range f.Follows {
		if pk == pubkey {
			return true
		}
	}
	return false
}

// StatusDiscriminator returns the event's "d" tag value, or
// DiscriminatorGeneral when absent. The (author, discriminator) pair is
// the replaceable-event key for user statuses.
func StatusDiscriminator(ev *nostr.Event) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "d" && tag[1] != "" {
			return tag[1]
		}
	}
	return DiscriminatorGeneral
}

// IsValidPubKey reports whether s looks like a 32-byte lowercase-hex
// public key.
func IsValidPubKey(s string) bool {
	if len(s) != 64 || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
