package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/geosnap/internal/common"
)

func (a *App) getStatus() string {
	s := a.session.State().String()
	if m := a.Mode(); m != "" {
		s = s + " " + string(m)
	}
	return fmt.Sprintf("(%s)", s)
}

// Root restores a previous session, starts the connectivity watcher and runs
// the REPL until the user exits or stdin closes.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to geosnap CLI (type 'help' for commands)")

	if err := a.session.Restore(ctx); err != nil {
		if errors.Is(err, common.ErrStorage) {
			printlnFn("Stored session could not be unlocked (wrong passphrase?). Use 'reset' to discard it.")
		} else {
			printlnFn("error:", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.in)
}
