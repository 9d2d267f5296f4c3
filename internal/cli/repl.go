package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Signup(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Orders(ctx context.Context) error
	Refresh(ctx context.Context) error
	JWT(ctx context.Context) error
	Status(ctx context.Context) error
	Go(ctx context.Context, path string) error
}

// runREPL reads one command per line and dispatches it until EOF or exit.
// Command errors are printed to out and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner, out io.Writer) {
	say := func(args ...any) { fmt.Fprintln(out, args...) }
	for {
		say(fmt.Sprintf("authctl %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				say("Available commands: whoami, orders, refresh, jwt, status, go <path>, logout, exit")
			} else {
				say("Available commands: signup, login, whoami, status, go <path>, exit")
			}
		case "signup":
			err = a.Signup(ctx)
		case "login":
			err = a.Login(ctx)
		case "logout":
			err = a.Logout(ctx)
		case "whoami":
			err = a.WhoAmI(ctx)
		case "orders":
			err = a.Orders(ctx)
		case "refresh":
			err = a.Refresh(ctx)
		case "jwt":
			err = a.JWT(ctx)
		case "status":
			err = a.Status(ctx)
		case "go":
			if len(args) != 1 {
				say("Usage: go <path>")
				continue
			}
			err = a.Go(ctx, args[0])
		case "exit", "quit":
			say("Bye!")
			return
		default:
			say("Unknown command:", cmd)
		}
		if err != nil {
			say("Error:", err)
		}
	}
}
