package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"nostatus/internal/models"
	"nostatus/internal/timeline"
)

// Status publishes a new status. An optional argument selects the
// discriminator, e.g. "status music".
func (a *App) Status(ctx context.Context, args []string) error {
	discriminator := ""
	if len(args) > 0 {
		discriminator = args[0]
	}

	content, err := GetSimpleText(a.reader, "What are you doing? (empty to clear)", os.Stdout)
	if err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}

	link, err := GetSimpleText(a.reader, "Link (optional)", os.Stdout)
	if err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}

	ev, err := a.sess.PublishStatus(ctx, content, discriminator, link)
	if err != nil {
		log.Printf("Publish failed: %v\n", err)
		return err
	}
	log.Printf("Published %s status %s\n", models.StatusDiscriminator(ev), ev.ID)
	return nil
}

// Timeline prints the cached timeline, newest first.
func (a *App) Timeline(ctx context.Context) error {
	tl, err := a.sess.CurrentTimeline(ctx)
	if err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}
	a.printTimeline(tl)
	return nil
}

// Refresh fetches fresh statuses from the network and prints the result.
func (a *App) Refresh(ctx context.Context) error {
	tl, report, err := a.sess.RefreshTimeline(ctx)
	if err != nil {
		log.Printf("Refresh failed: %v\n", err)
		return err
	}
	if report.RelaysFailed > 0 {
		log.Printf("Skipped %d of %d relays: %v\n", report.RelaysFailed, report.RelaysQueried, report.FailedRelays)
	}
	a.printTimeline(tl)
	return nil
}

func (a *App) printTimeline(tl *timeline.Timeline) {
	posts := tl.Posts()
	if len(posts) == 0 {
		printlnFn("Timeline is empty. Try 'refresh'.")
		return
	}
	for _, ev := range posts {
		when := time.Unix(int64(ev.CreatedAt), 0).Format(time.RFC822)
		d := models.StatusDiscriminator(ev)
		prefix := ""
		if d != models.DiscriminatorGeneral {
			prefix = fmt.Sprintf("[%s] ", d)
		}
		printlnFn(fmt.Sprintf("%s  %s…  %s%s", when, ev.PubKey[:8], prefix, ev.Content))
	}
}
