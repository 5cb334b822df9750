package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
)

func (a *App) getStatus() string {
	if !a.sess.Unlocked() {
		return "(locked)"
	}
	pk := a.sess.PubKey()
	return fmt.Sprintf("(%s… %s)", pk[:8], a.sess.RelayState())
}

func (a *App) Root(ctx context.Context) {
	log.Println("Welcome to nostatus (type 'help' for commands)")

	if a.sess.Registered() {
		_ = a.Unlock(ctx)
	} else {
		log.Println("No key found. Type 'register' to create one.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
