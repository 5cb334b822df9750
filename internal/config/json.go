package config

import (
	"encoding/json"
	"os"

	"nostatus/internal/flagx"
	"nostatus/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies
// on timex.Duration so JSON can specify the fetch timeout either as a
// string like "10s" or as integer nanoseconds. After parsing, values are
// copied into the runtime Config.
type JsonConfig struct {
	CachePath      string         `json:"cache_path"`
	KeyRecordPath  string         `json:"key_record_path"`
	LegacyCacheDir string         `json:"legacy_cache_dir"`
	DiscoverRelays []string       `json:"discover_relays"`
	DefaultRelays  []string       `json:"default_relays"`
	FetchTimeout   timex.Duration `json:"fetch_timeout"`
	MaxParallel    int            `json:"max_parallel"`
}

// parseJson overlays Config with values loaded from a JSON file. The
// file path comes from the -c or -config flags; when neither is present
// no JSON is loaded. Fields absent from the file keep their current
// values. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.CachePath != "" {
		cfg.CachePath = jc.CachePath
	}
	if jc.KeyRecordPath != "" {
		cfg.KeyRecordPath = jc.KeyRecordPath
	}
	if jc.LegacyCacheDir != "" {
		cfg.LegacyCacheDir = jc.LegacyCacheDir
	}
	if len(jc.DiscoverRelays) > 0 {
		cfg.DiscoverRelays = jc.DiscoverRelays
	}
	if len(jc.DefaultRelays) > 0 {
		cfg.DefaultRelays = jc.DefaultRelays
	}
	if jc.FetchTimeout.Duration > 0 {
		cfg.FetchTimeout = jc.FetchTimeout.Duration
	}
	if jc.MaxParallel > 0 {
		cfg.MaxParallel = jc.MaxParallel
	}
}
