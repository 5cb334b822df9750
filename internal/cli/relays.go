package cli

import (
	"context"
	"fmt"
	"log"
	"strings"

	"nostatus/internal/models"
)

func (a *App) Relays(ctx context.Context) error {
	list := a.sess.Relays()
	printlnFn(fmt.Sprintf("Relay list (%s):", a.sess.RelayState()))
	for _, r := range list.Relays {
		mode := "read+write"
		switch {
		case r.Read && !r.Write:
			mode = "read"
		case r.Write && !r.Read:
			mode = "write"
		}
		printlnFn(fmt.Sprintf("  %s  %s", r.URL, mode))
	}
	return nil
}

// EditRelays replaces the published relay list. Each argument is a relay
// url, optionally suffixed with :read or :write to restrict its role.
func (a *App) EditRelays(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printlnFn("Usage: setrelays wss://relay.one wss://relay.two:read ...")
		return nil
	}

	var relays []models.RelayDescriptor
	for _, arg := range args {
		d := models.RelayDescriptor{Read: true, Write: true}
		switch {
		case strings.HasSuffix(arg, ":read"):
			d.URL, d.Write = strings.TrimSuffix(arg, ":read"), false
		case strings.HasSuffix(arg, ":write"):
			d.URL, d.Read = strings.TrimSuffix(arg, ":write"), false
		default:
			d.URL = arg
		}
		relays = append(relays, d)
	}

	if err := a.sess.EditRelayList(ctx, relays); err != nil {
		log.Printf("Relay list update failed: %v\n", err)
		return err
	}
	log.Println("Relay list published")
	return nil
}
