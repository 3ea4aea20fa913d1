package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/common"
)

func (a *App) ListQueue(ctx context.Context) error {
	jobs, err := a.queue.List(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		printlnFn("No queued uploads.")
		return nil
	}
	for i, j := range jobs {
		line := fmt.Sprintf("%d. %s  %s  location=%s  stage=%s  retries=%d",
			i+1, j.ClientID, j.FileName, j.LocationID, j.Stage, j.RetryCount)
		if j.LastError != "" {
			line += "  last error: " + j.LastError
		}
		printlnFn(line)
	}
	return nil
}

func (a *App) Retry(ctx context.Context) error {
	if !a.isLoggedIn() {
		printlnFn("Please log in first.")
		return nil
	}
	outcomes, err := a.queue.Replay(ctx, a.uploads)
	printOutcomes(outcomes)
	return err
}

func (a *App) Status(ctx context.Context) error {
	jobs, err := a.queue.List(ctx)
	if err != nil {
		return err
	}
	mode := a.Mode()
	if mode == "" {
		mode = "unknown"
	}
	printlnFn(fmt.Sprintf("session: %s, connectivity: %s, queued uploads: %d",
		a.session.State(), mode, len(jobs)))
	return nil
}

func printOutcomes(outcomes []models.UploadOutcome) {
	if len(outcomes) == 0 {
		printlnFn("Nothing to retry.")
		return
	}
	for _, o := range outcomes {
		var partial *common.PartialUploadError
		switch {
		case o.Err == nil:
			printlnFn(fmt.Sprintf("%s: uploaded as photo %s", o.FileName, o.Photo.ID))
		case errors.Is(o.Err, common.ErrRetryExhausted) && errors.As(o.Err, &partial):
			printlnFn(fmt.Sprintf("%s: gave up; placeholder photo %s left on the server", o.FileName, partial.PhotoID))
		case errors.Is(o.Err, common.ErrRetryExhausted):
			printlnFn(fmt.Sprintf("%s: gave up: %v", o.FileName, o.Err))
		case common.IsRetryable(o.Err):
			printlnFn(fmt.Sprintf("%s: still offline, will retry", o.FileName))
		case errors.Is(o.Err, common.ErrUploadInterrupted):
			printlnFn(fmt.Sprintf("%s: interrupted, stays queued", o.FileName))
		default:
			printlnFn(fmt.Sprintf("%s: failed: %v", o.FileName, o.Err))
		}
	}
}
