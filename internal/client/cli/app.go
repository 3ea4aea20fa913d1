package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/dmitrijs2005/geosnap/internal/client/client"
	"github.com/dmitrijs2005/geosnap/internal/client/config"
	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/geosnap/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/geosnap/internal/client/repositories/uploadjobs"
	"github.com/dmitrijs2005/geosnap/internal/client/services"
	"github.com/dmitrijs2005/geosnap/internal/client/tokenstore"
	"github.com/dmitrijs2005/geosnap/internal/client/transport"
	"github.com/dmitrijs2005/geosnap/internal/filex"
	"github.com/dmitrijs2005/geosnap/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type sessionService interface {
	State() services.SessionState
	Restore(ctx context.Context) error
	StartLogin(ctx context.Context) (string, error)
	HandleCallback(ctx context.Context, callbackURL string) error
	Logout(ctx context.Context) error
}

type uploadService interface {
	services.JobRunner
	Submit(ctx context.Context, c models.Capture) (*models.Photo, error)
}

type jobQueue interface {
	List(ctx context.Context) ([]models.UploadJob, error)
	Replay(ctx context.Context, runner services.JobRunner) ([]models.UploadOutcome, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	config  *config.Config
	session sessionService
	uploads uploadService
	queue   jobQueue
	backend pinger
	reset   func(ctx context.Context) error
	log     logging.Logger
	in      *bufio.Scanner
	out     io.Writer
	closers []func()

	mu   sync.Mutex
	mode Mode
}

// NewApp opens the local database, unlocks the token store with passphrase
// and wires the session, transport, upload and queue services.
func NewApp(ctx context.Context, c *config.Config, passphrase []byte, log logging.Logger) (*App, error) {
	if _, err := filex.EnsureDataDir(c.DataDir); err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, c.DBPath())
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	store, err := tokenstore.Open(ctx,
		credentials.NewSQLiteRepository(db),
		metadata.NewSQLiteRepository(db),
		passphrase,
		tokenstore.WithLeadWindow(c.RefreshLeadWindow),
		tokenstore.WithLogger(log.With("component", "tokenstore")))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{
		config: c,
		log:    log,
		in:     bufio.NewScanner(os.Stdin),
		out:    os.Stdout,
		reset:  func(ctx context.Context) error { return client.ResetLocalData(ctx, db) },
	}
	a.closers = append(a.closers, store.Close, func() { _ = db.Close() })

	httpClient := &http.Client{Timeout: c.RequestTimeout}

	session, err := services.NewSessionManager(c.OAuth(), store,
		services.WithHTTPClient(httpClient),
		services.WithBrowserOpener(printOpener(a.out)),
		services.WithSessionLogger(log.With("component", "session")))
	if err != nil {
		a.Close()
		return nil, err
	}

	tr := transport.New(c.BackendURL, httpClient, session, log.With("component", "transport"))
	tr.OnSessionInvalidated(session.HandleUnauthorized)

	backend := client.NewBackendClient(tr)
	storage := client.NewStorageClient(c.StorageUploadURL, httpClient)

	queue := services.NewQueue(uploadjobs.NewSQLiteRepository(db), c.QueueOptions(), log.With("component", "queue"))

	uploads := services.NewUploadService(backend, storage, c.UploadOptions(),
		services.WithQueue(queue),
		services.WithSessionBinder(session),
		services.WithUploadLogger(log.With("component", "upload")))

	a.session = session
	a.uploads = uploads
	a.queue = queue
	a.backend = backend

	return a, nil
}

// printOpener shows the authorization URL instead of launching a browser.
func printOpener(w io.Writer) services.BrowserOpener {
	return services.OpenerFunc(func(_ context.Context, authURL string) error {
		_, err := fmt.Fprintf(w, "Open this URL in your browser to log in:\n  %s\n", authURL)
		return err
	})
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// setMode records the connectivity mode and reports whether it changed.
func (a *App) setMode(mode Mode) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == mode {
		return false
	}
	a.mode = mode
	a.log.Info(context.Background(), "connectivity changed", "mode", string(mode))
	return true
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) isLoggedIn() bool {
	switch a.session.State() {
	case services.StateAuthenticated, services.StateRefreshing:
		return true
	}
	return false
}

func (a *App) Run(ctx context.Context) {
	defer a.Close()
	a.Root(ctx)
}
