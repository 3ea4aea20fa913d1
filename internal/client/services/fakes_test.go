package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/client/client"
	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/imaging"
)

// ---- fake backend ----

// fakeAPI implements client.API. Queued errors are returned one per call
// before the call starts succeeding.
type fakeAPI struct {
	mu sync.Mutex

	RequestErrs []error
	ConfirmErrs []error
	Expire      time.Time

	Calls     []string
	Requests  []client.UploadRequest
	Confirmed []string
	Deleted   []string
	nextPhoto int
}

func (f *fakeAPI) pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeAPI) RequestUpload(_ context.Context, req client.UploadRequest) (*client.UploadTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "request")
	f.Requests = append(f.Requests, req)
	if err := f.pop(&f.RequestErrs); err != nil {
		return nil, err
	}
	f.nextPhoto++
	expire := f.Expire
	if expire.IsZero() {
		expire = t0.Add(time.Hour)
	}
	return &client.UploadTicket{
		PhotoID: fmt.Sprintf("photo-%d", f.nextPhoto),
		Params: models.SignedUploadParams{
			UploadToken: "ut", Signature: "sig", Expire: expire,
			FileName: req.FileName, Folder: "/photos/" + req.LocationID, PublicKey: "pk",
		},
	}, nil
}

func (f *fakeAPI) Confirm(_ context.Context, photoID, fileID, url string) (*models.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "confirm")
	f.Confirmed = append(f.Confirmed, photoID)
	if err := f.pop(&f.ConfirmErrs); err != nil {
		return nil, err
	}
	return &models.Photo{ID: photoID, FilePath: "/photos/" + fileID, URL: url, UploadedAt: t0}, nil
}

func (f *fakeAPI) DeletePhoto(_ context.Context, photoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "delete")
	f.Deleted = append(f.Deleted, photoID)
	return nil
}

func (f *fakeAPI) Ping(context.Context) error { return nil }

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// ---- fake storage provider ----

type fakeStorage struct {
	mu sync.Mutex

	Errs    []error
	Results []models.StorageResult

	Uploads []models.SignedUploadParams
}

func (f *fakeStorage) Upload(_ context.Context, p models.SignedUploadParams, image []byte, _ string) (models.StorageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Uploads = append(f.Uploads, p)
	if len(f.Errs) > 0 {
		err := f.Errs[0]
		f.Errs = f.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.Results) > 0 {
		r := f.Results[0]
		f.Results = f.Results[1:]
		return r, nil
	}
	return models.StorageSuccess{FileID: "file-" + p.FileName, URL: "https://cdn.example" + p.TargetPath()}, nil
}

func (f *fakeStorage) uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Uploads)
}

// ---- fake compressor ----

type fakeCompressor struct {
	Err   error
	Calls int
}

func (f *fakeCompressor) Compress(image.Image, imaging.Options) ([]byte, imaging.Result, error) {
	f.Calls++
	if f.Err != nil {
		return nil, imaging.Result{}, f.Err
	}
	return []byte{0xff, 0xd8, 0xff, 0xd9}, imaging.Result{Quality: 0.9, Width: 4, Height: 3}, nil
}

// ---- fake queue ----

type memQueue struct {
	mu   sync.Mutex
	Jobs []models.UploadJob
}

func (q *memQueue) Enqueue(_ context.Context, job models.UploadJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Jobs = append(q.Jobs, job)
	return nil
}

// logoutStorage ends the session of m while the media upload is in flight
// and waits for the bound context to notice.
type logoutStorage struct {
	m *SessionManager
}

func (l *logoutStorage) Upload(ctx context.Context, _ models.SignedUploadParams, _ []byte, _ string) (models.StorageResult, error) {
	if err := l.m.Logout(context.Background()); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
		return nil, errors.New("upload outlived the session")
	}
}

func newLoggedInManager(t *testing.T) *SessionManager {
	t.Helper()
	m, _ := newManager(t, newOAuthServer(t, "v1"), newClock(t0))
	login(t, m)
	return m
}

func newSessionBoundService(api *fakeAPI, m *SessionManager, extra ...UploadOption) *UploadService {
	opts := testUploadOptions()
	opts.DiscardOrphans = true
	options := append([]UploadOption{
		WithCompressor(&fakeCompressor{}),
		WithUploadClock(func() time.Time { return t0 }),
		WithSessionBinder(m),
	}, extra...)
	return NewUploadService(api, &logoutStorage{m: m}, opts, options...)
}
