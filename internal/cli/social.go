package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"nostatus/internal/models"
)

func (a *App) Follow(ctx context.Context, args []string) error {
	pk, err := a.pubkeyArg(args, "Public key to follow (hex)")
	if err != nil {
		return err
	}
	if err := a.sess.Follow(ctx, pk); err != nil {
		log.Printf("Follow failed: %v\n", err)
		return err
	}
	log.Printf("Following %s\n", pk)
	return nil
}

func (a *App) Unfollow(ctx context.Context, args []string) error {
	pk, err := a.pubkeyArg(args, "Public key to unfollow (hex)")
	if err != nil {
		return err
	}
	if err := a.sess.Unfollow(ctx, pk); err != nil {
		log.Printf("Unfollow failed: %v\n", err)
		return err
	}
	log.Printf("Unfollowed %s\n", pk)
	return nil
}

func (a *App) Follows(ctx context.Context) error {
	list := a.sess.Follows()
	if len(list.Follows) == 0 {
		printlnFn("Not following anyone yet.")
		return nil
	}
	for _, pk := range list.Follows {
		name := ""
		if p, err := a.sess.FetchProfile(ctx, pk); err == nil && p.Name != "" {
			name = "  " + p.Name
		}
		printlnFn(fmt.Sprintf("%s%s", pk, name))
	}
	return nil
}

// Profile shows the profile of the given pubkey, or the user's own when
// no argument is supplied.
func (a *App) Profile(ctx context.Context, args []string) error {
	pk := a.sess.PubKey()
	if len(args) > 0 {
		pk = args[0]
	}
	if !models.IsValidPubKey(pk) {
		log.Printf("Invalid pubkey: %q\n", pk)
		return nil
	}

	p, err := a.sess.FetchProfile(ctx, pk)
	if err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}
	printlnFn("Name:   ", p.Name)
	printlnFn("About:  ", p.About)
	if p.NIP05 != "" {
		printlnFn("NIP-05: ", p.NIP05)
	}
	if p.Picture != "" {
		printlnFn("Picture:", p.Picture)
	}
	return nil
}

func (a *App) EditProfile(ctx context.Context) error {
	current, err := a.sess.FetchProfile(ctx, a.sess.PubKey())
	if err != nil {
		current = models.ProfileMetadata{}
	}

	name, err := GetSimpleText(a.reader, fmt.Sprintf("Name [%s]", current.Name), os.Stdout)
	if err != nil {
		return err
	}
	about, err := GetSimpleText(a.reader, fmt.Sprintf("About [%s]", current.About), os.Stdout)
	if err != nil {
		return err
	}

	if name != "" {
		current.Name = name
	}
	if about != "" {
		current.About = about
	}

	if err := a.sess.UpdateProfile(ctx, current); err != nil {
		log.Printf("Update failed: %v\n", err)
		return err
	}
	log.Println("Profile updated")
	return nil
}

func (a *App) pubkeyArg(args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	pk, err := GetSimpleText(a.reader, prompt, os.Stdout)
	if err != nil {
		log.Printf("Error: %v\n", err)
		return "", err
	}
	return pk, nil
}
