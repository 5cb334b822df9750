package models

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// ProfileMetadata is the kind-0 profile document. Known fields are typed;
// anything else the author published is preserved verbatim in Extra so a
// round-trip does not drop data.
type ProfileMetadata struct {
	Name    string `json:"name"`
	About   string `json:"about"`
	Picture string `json:"picture"`
	NIP05   string `json:"nip05"`
	Lud16   string `json:"lud16"`

	Extra map[string]json.RawMessage `json:"-"`
}

var profileKnownFields = []string{"name", "about", "picture", "nip05", "lud16"}

func (p *ProfileMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(key string, dst *string) {
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, dst)
			delete(raw, key)
		}
	}
	take("name", &p.Name)
	take("about", &p.About)
	take("picture", &p.Picture)
	take("nip05", &p.NIP05)
	take("lud16", &p.Lud16)

	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

func (p ProfileMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(profileKnownFields)+len(p.Extra))
	for k, v := range p.Extra {
		out[k] = v
	}
	out["name"] = p.Name
	out["about"] = p.About
	out["picture"] = p.Picture
	out["nip05"] = p.NIP05
	out["lud16"] = p.Lud16
	return json.Marshal(out)
}

// ParseProfile decodes the JSON content of a kind-0 event.
func ParseProfile(ev *nostr.Event) (ProfileMetadata, error) {
	var p ProfileMetadata
	if err := json.Unmarshal([]byte(ev.Content), &p); err != nil {
		return ProfileMetadata{}, fmt.Errorf("profile content for %s: %w", ev.PubKey, err)
	}
	return p, nil
}
