package cli

import (
	"context"
	"time"
)

const pingTimeout = 3 * time.Second

// StartOnlineStatusWatcher probes the backend every interval until ctx ends.
// Coming back online with a live session replays the upload queue.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := a.backend.Ping(pctx)
	cancel()

	if err != nil {
		a.setMode(ModeOffline)
		return
	}
	if a.setMode(ModeOnline) {
		a.replayIfOnline(ctx)
	}
}

func (a *App) replayIfOnline(ctx context.Context) {
	if a.Mode() != ModeOnline || !a.isLoggedIn() {
		return
	}
	outcomes, err := a.queue.Replay(ctx, a.uploads)
	if err != nil {
		a.log.Warn(ctx, "queue replay interrupted", "error", err)
	}
	if len(outcomes) > 0 {
		printOutcomes(outcomes)
	}
}
