package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var errUsageCallback = errors.New("usage: callback <redirect-url>")

// Login starts the authorization-code flow and, when the user pastes the
// redirect URL right away, completes it.
func (a *App) Login(ctx context.Context) error {
	if a.isLoggedIn() {
		printlnFn("Already logged in. Use 'logout' first.")
		return nil
	}

	if _, err := a.session.StartLogin(ctx); err != nil {
		return err
	}

	raw, err := GetSimpleText(a.in, "Paste the redirect URL here (or finish later with 'callback <url>')", a.out)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if raw == "" {
		return nil
	}
	return a.completeLogin(ctx, raw)
}

func (a *App) Callback(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsageCallback
	}
	return a.completeLogin(ctx, args[0])
}

func (a *App) completeLogin(ctx context.Context, callbackURL string) error {
	if err := a.session.HandleCallback(ctx, callbackURL); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	printlnFn("Logged in.")
	a.replayIfOnline(ctx)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	printlnFn("Logged out.")
	return nil
}

// Reset logs out and discards the stored credential and the upload queue.
func (a *App) Reset(ctx context.Context) error {
	answer, err := GetSimpleText(a.in, "This drops the saved login and all queued uploads. Type 'yes' to continue", a.out)
	if err != nil || answer != "yes" {
		printlnFn("Reset cancelled.")
		return nil
	}
	// Logout clears the cached credential even when the sealed one is unreadable.
	_ = a.session.Logout(ctx)
	if err := a.reset(ctx); err != nil {
		return err
	}
	printlnFn("Local data reset.")
	return nil
}
