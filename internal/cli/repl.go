package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it
// with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to
// operate. The real App type satisfies this interface; tests can provide
// a lightweight stub.
type execIface interface {
	isUnlocked() bool
	Register(ctx context.Context) error
	Unlock(ctx context.Context) error
	Status(ctx context.Context, args []string) error
	Timeline(ctx context.Context) error
	Refresh(ctx context.Context) error
	Follow(ctx context.Context, args []string) error
	Unfollow(ctx context.Context, args []string) error
	Follows(ctx context.Context) error
	Profile(ctx context.Context, args []string) error
	EditProfile(ctx context.Context) error
	Relays(ctx context.Context) error
	EditRelays(ctx context.Context, args []string) error
	Rotate(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads a line from the scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are
// reported back to the user. The loop exits on scanner EOF or when the
// user types "exit" or "quit".
//
// Errors returned by command handlers are ignored here; handlers print
// their own errors. This keeps the loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("nostatus> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn("Available commands: status [d], (t)imeline, refresh, follow, unfollow, follows, profile, editprofile, relays, setrelays, rotate, logout, exit")
			} else {
				printlnFn("Available commands: register, unlock, rotate, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "unlock", "login":
			_ = a.Unlock(ctx)

		case "status":
			_ = a.Status(ctx, args)

		case "t", "timeline":
			_ = a.Timeline(ctx)

		case "refresh":
			_ = a.Refresh(ctx)

		case "follow":
			_ = a.Follow(ctx, args)

		case "unfollow":
			_ = a.Unfollow(ctx, args)

		case "follows":
			_ = a.Follows(ctx)

		case "profile":
			_ = a.Profile(ctx, args)

		case "editprofile":
			_ = a.EditProfile(ctx)

		case "relays":
			_ = a.Relays(ctx)

		case "setrelays":
			_ = a.EditRelays(ctx, args)

		case "rotate":
			_ = a.Rotate(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
