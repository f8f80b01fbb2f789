package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Refresh(ctx context.Context) error
	Status(ctx context.Context) error
	ClientToken(ctx context.Context) error
	SendCode(ctx context.Context) error
	Verify(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads a line from scanner, treats the first token as the command
// and dispatches to a. It returns on EOF or on "exit" / "quit".
//
// Command handlers report their own errors, so returned errors are dropped.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("oauth %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: status, refresh, client-token, deactivate, logout, exit")
			} else {
				printlnFn("Available commands: register, send-code, verify, login, client-token, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "refresh":
			_ = a.Refresh(ctx)

		case "status":
			_ = a.Status(ctx)

		case "client-token":
			_ = a.ClientToken(ctx)

		case "send-code":
			_ = a.SendCode(ctx)

		case "verify":
			_ = a.Verify(ctx)

		case "deactivate":
			_ = a.Deactivate(ctx)

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
