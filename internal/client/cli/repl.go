package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Status(ctx context.Context) error
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) error
	Complete(ctx context.Context) error
	Focus(ctx context.Context) error
	Exit(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the haulage CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help           show available commands
//	  - status         show the session state
//	  - register       create an account
//	  - login          authenticate
//	  - exit | quit    leave the program
//
//	Logged in:
//	  - help           show available commands
//	  - status         show the session and profile state
//	  - refresh        re-fetch the profile
//	  - complete       enter first and last name
//	  - focus          simulate a focus change
//	  - logout         log out
//	  - exit | quit    leave the program
//
// Command errors are printed and the loop carries on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("haulage %s> ", statusFn()))
		if !scanner.Scan() {
			_ = a.Exit(ctx)
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: status, refresh, complete, focus, logout, exit")
			} else {
				printlnFn("Available commands: status, register, login, exit")
			}

		case "status":
			err = a.Status(ctx)

		case "register":
			err = a.Register(ctx)

		case "login":
			err = a.Login(ctx)

		case "logout":
			err = a.Logout(ctx)

		case "refresh":
			err = a.Refresh(ctx)

		case "complete":
			err = a.Complete(ctx)

		case "focus":
			err = a.Focus(ctx)

		case "exit", "quit":
			if err := a.Exit(ctx); err != nil {
				printlnFn("error:", err)
			}
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("error:", err)
		}
	}
}
