// Package cli is the interactive terminal frontend. It owns stdin/stdout
// and translates REPL commands into session operations; all state lives
// behind the session facade.
package cli

import (
	"bufio"
	"context"
	"os"

	"nostatus/internal/cache"
	"nostatus/internal/config"
	"nostatus/internal/logging"
	"nostatus/internal/relay"
	"nostatus/internal/session"
)

type App struct {
	config *config.Config
	store  *cache.Store
	pool   *relay.Pool
	sess   *session.Session
	reader *bufio.Reader
}

func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	store, err := cache.Open(ctx, cfg.CachePath, log)
	if err != nil {
		return nil, err
	}

	pool := relay.NewPool(cfg.FetchTimeout, log)
	sess := session.New(cfg, pool, store, log)

	return &App{
		config: cfg,
		store:  store,
		pool:   pool,
		sess:   sess,
		reader: bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.pool.Close()
	defer a.store.Close()
	a.Root(ctx)
}

func (a *App) isUnlocked() bool {
	return a.sess.Unlocked()
}
