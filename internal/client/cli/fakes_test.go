package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/geosnap/internal/client/config"
	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/client/services"
	"github.com/dmitrijs2005/geosnap/internal/logging"
)

// capturePrint replaces printlnFn and returns the printed lines.
func capturePrint(t *testing.T) *[]string {
	t.Helper()
	var mu sync.Mutex
	lines := []string{}
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

type fakeSession struct {
	state      services.SessionState
	restoreErr error
	callbacks  []string
	callbackFn func(string) error
	logouts    int
	starts     int
}

func (f *fakeSession) State() services.SessionState      { return f.state }
func (f *fakeSession) Restore(ctx context.Context) error { return f.restoreErr }
func (f *fakeSession) StartLogin(ctx context.Context) (string, error) {
	f.starts++
	f.state = services.StateAwaitingCallback
	return "https://idp.example/authorize?x=1", nil
}
func (f *fakeSession) HandleCallback(ctx context.Context, u string) error {
	f.callbacks = append(f.callbacks, u)
	if f.callbackFn != nil {
		if err := f.callbackFn(u); err != nil {
			return err
		}
	}
	f.state = services.StateAuthenticated
	return nil
}
func (f *fakeSession) Logout(ctx context.Context) error {
	f.logouts++
	f.state = services.StateLoggedOut
	return nil
}

type fakeUploads struct {
	captures []models.Capture
	photo    *models.Photo
	err      error
}

func (f *fakeUploads) Submit(ctx context.Context, c models.Capture) (*models.Photo, error) {
	f.captures = append(f.captures, c)
	return f.photo, f.err
}
func (f *fakeUploads) Run(ctx context.Context, job models.UploadJob, cp services.Checkpoint) (models.UploadJob, *models.Photo, error) {
	return job, f.photo, f.err
}
func (f *fakeUploads) Abandon(ctx context.Context, job models.UploadJob, cause error) error {
	return cause
}

type fakeQueue struct {
	mu       sync.Mutex
	jobs     []models.UploadJob
	outcomes []models.UploadOutcome
	replays  int
}

func (f *fakeQueue) List(ctx context.Context) ([]models.UploadJob, error) { return f.jobs, nil }
func (f *fakeQueue) Replay(ctx context.Context, r services.JobRunner) ([]models.UploadOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replays++
	return f.outcomes, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestApp(input string) (*App, *fakeSession, *fakeUploads, *fakeQueue) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	s := &fakeSession{}
	u := &fakeUploads{}
	q := &fakeQueue{}
	a := &App{
		config:  cfg,
		session: s,
		uploads: u,
		queue:   q,
		backend: &fakePinger{},
		reset:   func(context.Context) error { return nil },
		log:     logging.Nop(),
		in:      bufio.NewScanner(strings.NewReader(input)),
		out:     io.Discard,
	}
	return a, s, u, q
}
