package config

import (
	"flag"
	"os"
	"time"

	"nostatus/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   path to the cache database
//	-k string   path to the encrypted key record
//	-t int      relay fetch timeout in seconds
//	-p int      maximum concurrent relay connections
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-k", "-t", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.CachePath, "d", cfg.CachePath, "path to the cache database")
	fs.StringVar(&cfg.KeyRecordPath, "k", cfg.KeyRecordPath, "path to the encrypted key record")
	fetchTimeout := fs.Int("t", int(cfg.FetchTimeout.Seconds()), "relay fetch timeout (in seconds)")
	fs.IntVar(&cfg.MaxParallel, "p", cfg.MaxParallel, "maximum concurrent relay connections")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.FetchTimeout = time.Duration(*fetchTimeout) * time.Second
}
