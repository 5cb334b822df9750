package cli

import (
	"context"
	"log"
	"os"

	"nostatus/internal/vault"
)

// Register creates the encrypted key record: the user either pastes an
// existing hex secret key or leaves the prompt empty to generate one.
func (a *App) Register(ctx context.Context) error {
	sk, err := GetSimpleText(a.reader, "Secret key (hex), empty to generate a new one", os.Stdout)
	if err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}

	pw, err := GetPassword("Choose a passphrase: ", os.Stdout)
	if err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}
	defer vault.Wipe(pw)

	confirm, err := GetPassword("Repeat the passphrase: ", os.Stdout)
	if err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}
	defer vault.Wipe(confirm)

	if string(pw) != string(confirm) {
		log.Println("Passphrases do not match")
		return nil
	}

	if err := a.sess.Register(ctx, sk, pw); err != nil {
		log.Printf("Registration failed: %v\n", err)
		return err
	}

	log.Printf("Registered. Your public key: %s\n", a.sess.PubKey())
	return nil
}

func (a *App) Unlock(ctx context.Context) error {
	pw, err := GetPassword("Enter passphrase: ", os.Stdout)
	if err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}
	defer vault.Wipe(pw)

	if err := a.sess.Unlock(ctx, pw); err != nil {
		log.Printf("Unlock failed: %v\n", err)
		return err
	}

	log.Printf("Unlocked %s (relays: %s)\n", a.sess.PubKey(), a.sess.RelayState())
	return nil
}

// Rotate re-encrypts the key record under a new passphrase.
func (a *App) Rotate(ctx context.Context) error {
	oldPw, err := GetPassword("Current passphrase: ", os.Stdout)
	if err != nil {
		return err
	}
	defer vault.Wipe(oldPw)

	newPw, err := GetPassword("New passphrase: ", os.Stdout)
	if err != nil {
		return err
	}
	defer vault.Wipe(newPw)

	if err := a.sess.RotatePassphrase(oldPw, newPw); err != nil {
		log.Printf("Rotation failed: %v\n", err)
		return err
	}
	log.Println("Passphrase changed")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.sess.Logout()
	// Drop relay connections too; the pool redials on next unlock.
	a.pool.Close()
	log.Println("Locked")
	return nil
}
