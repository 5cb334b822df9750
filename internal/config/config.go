// Package config loads runtime configuration for the nostatus client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
package config

import "time"

// Config holds runtime settings for the client engine.
type Config struct {
	// CachePath is the sqlite database backing the local cache.
	CachePath string
	// KeyRecordPath is the file holding the encrypted key record.
	KeyRecordPath string
	// LegacyCacheDir is scanned once for pre-sqlite JSON cache files.
	LegacyCacheDir string
	// DiscoverRelays are queried for relay list events when nothing
	// better is known about an identity.
	DiscoverRelays []string
	// DefaultRelays serve reads and writes while no relay list of our
	// own could be obtained.
	DefaultRelays []string
	// FetchTimeout bounds every relay round trip.
	FetchTimeout time.Duration
	// MaxParallel caps concurrent relay connections.
	MaxParallel int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.CachePath = "nostatus.db"
	c.KeyRecordPath = "key.json"
	c.LegacyCacheDir = "cache"
	c.DiscoverRelays = []string{
		"wss://purplepag.es",
		"wss://directory.yabu.me",
	}
	c.DefaultRelays = []string{
		"wss://relay.damus.io",
		"wss://relay.nostr.wirednet.jp",
		"wss://yabu.me",
	}
	c.FetchTimeout = 10 * time.Second
	c.MaxParallel = 4
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
