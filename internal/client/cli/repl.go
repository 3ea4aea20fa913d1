package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App satisfies it.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Callback(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	Upload(ctx context.Context, args []string) error
	ListQueue(ctx context.Context) error
	Retry(ctx context.Context) error
	Status(ctx context.Context) error
	Reset(ctx context.Context) error
}

// runREPL reads commands from scanner and dispatches them to a until EOF or
// "exit"/"quit".
//
//	Logged out:
//	  - login                       start the browser login
//	  - callback <url>              finish a login with the redirect URL
//	Logged in:
//	  - upload <path> <location> [lat lng]
//	  - queue                       list uploads waiting for retry
//	  - retry                       replay the queue now
//	  - logout
//	Always:
//	  - status, reset, help, exit | quit
//
// Handler errors are printed; the loop keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("geosnap %s > ", statusFn()))
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
				printlnFn("Available commands: upload, queue, retry, status, logout, reset, exit")
			} else {
				printlnFn("Available commands: login, callback, queue, status, reset, exit")
			}

		case "login":
			err = a.Login(ctx)

		case "callback":
			err = a.Callback(ctx, args)

		case "logout":
			err = a.Logout(ctx)

		case "upload", "u":
			err = a.Upload(ctx, args)

		case "queue", "q":
			err = a.ListQueue(ctx)

		case "retry":
			err = a.Retry(ctx)

		case "status":
			err = a.Status(ctx)

		case "reset":
			err = a.Reset(ctx)

		case "exit", "quit":
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
