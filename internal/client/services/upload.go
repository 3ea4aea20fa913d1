package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/client/client"
	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/dmitrijs2005/geosnap/internal/imaging"
	"github.com/dmitrijs2005/geosnap/internal/logging"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Compressor turns a capture into upload bytes.
type Compressor interface {
	Compress(img image.Image, o imaging.Options) ([]byte, imaging.Result, error)
}

// Enqueuer accepts jobs for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.UploadJob) error
}

// SessionBinder ties work to the lifetime of the login session.
type SessionBinder interface {
	Bind(ctx context.Context) (context.Context, context.CancelFunc)
}

// Checkpoint persists a job snapshot after a protocol step succeeds.
type Checkpoint func(ctx context.Context, job models.UploadJob) error

type UploadOptions struct {
	Compression imaging.Options
	// StepRetries is the number of extra attempts per protocol step for
	// transient failures.
	StepRetries    int
	StepBackoff    time.Duration
	DiscardOrphans bool
}

func DefaultUploadOptions() UploadOptions {
	return UploadOptions{
		Compression: imaging.DefaultOptions(),
		StepRetries: 2,
		StepBackoff: 500 * time.Millisecond,
	}
}

// UploadService runs captures through the three-step upload protocol:
// request signed parameters, upload to storage, confirm with the backend.
type UploadService struct {
	api        client.API
	storage    client.Storage
	compressor Compressor
	queue      Enqueuer
	binder     SessionBinder
	opts       UploadOptions
	now        func() time.Time
	log        logging.Logger
}

type UploadOption func(*UploadService)

func WithCompressor(c Compressor) UploadOption {
	return func(s *UploadService) { s.compressor = c }
}

func WithQueue(q Enqueuer) UploadOption {
	return func(s *UploadService) { s.queue = q }
}

func WithSessionBinder(b SessionBinder) UploadOption {
	return func(s *UploadService) { s.binder = b }
}

func WithUploadClock(now func() time.Time) UploadOption {
	return func(s *UploadService) { s.now = now }
}

func WithUploadLogger(l logging.Logger) UploadOption {
	return func(s *UploadService) { s.log = l }
}

func NewUploadService(api client.API, storage client.Storage, opts UploadOptions, options ...UploadOption) *UploadService {
	s := &UploadService{
		api:        api,
		storage:    storage,
		compressor: imaging.New(),
		opts:       opts,
		now:        time.Now,
		log:        logging.Nop(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Submit compresses c and uploads it. When the upload fails for a transient
// reason or is interrupted, the job is queued with whatever progress it made
// and the error wraps common.ErrQueued.
func (s *UploadService) Submit(ctx context.Context, c models.Capture) (*models.Photo, error) {
	data, res, err := s.compressor.Compress(c.Image, s.opts.Compression)
	if err != nil {
		return nil, err
	}

	job := NewUploadJob(c, data, imaging.MimeJPEG)
	log := s.log.With("client_id", job.ClientID.String())
	log.Info(ctx, "capture compressed",
		"bytes", len(data), "quality", res.Quality,
		"width", res.Width, "height", res.Height, "resized", res.Resized)

	job, photo, err := s.Run(ctx, job, nil)
	if err == nil {
		return photo, nil
	}

	if s.queue != nil && (common.IsRetryable(err) || errors.Is(err, common.ErrUploadInterrupted)) {
		if qerr := s.queue.Enqueue(context.WithoutCancel(ctx), job); qerr != nil {
			log.Error(ctx, "could not queue failed upload", "error", qerr)
			return nil, errors.Join(err, qerr)
		}
		log.Info(ctx, "upload queued for retry", "stage", string(job.Stage), "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrQueued, err)
	}
	return nil, err
}

// NewUploadJob snapshots a compressed capture. The file name gets a .jpg
// extension because the bytes are always re-encoded as JPEG.
func NewUploadJob(c models.Capture, data []byte, mimeType string) models.UploadJob {
	id := uuid.New()
	name := c.FileName
	if name == "" {
		name = id.String()
	}
	name = strings.TrimSuffix(path.Base(name), path.Ext(name)) + ".jpg"

	capturedAt := c.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	return models.UploadJob{
		ClientID:   id,
		Image:      data,
		MimeType:   mimeType,
		FileName:   name,
		LocationID: c.LocationID,
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
		CapturedAt: capturedAt.UTC(),
		Stage:      models.StagePending,
	}
}

// Run drives job from its recorded stage to confirmation and returns the
// last snapshot. On error the snapshot keeps the progress made, and:
//   - a transient error (common.IsRetryable) leaves the job resumable;
//   - a cancelled ctx (including the session ending through the binder) or
//     an expired session wraps common.ErrUploadInterrupted and also leaves
//     the job resumable;
//   - any other error is terminal and, when the backend placeholder already
//     exists, comes back as *common.PartialUploadError.
func (s *UploadService) Run(ctx context.Context, job models.UploadJob, checkpoint Checkpoint) (models.UploadJob, *models.Photo, error) {
	if s.binder != nil {
		var cancel context.CancelFunc
		ctx, cancel = s.binder.Bind(ctx)
		defer cancel()
	}
	log := s.log.With("client_id", job.ClientID.String())

	job, photo, err := s.run(ctx, log, job, checkpoint)
	if err == nil {
		log.Info(ctx, "upload complete", "photo_id", photo.ID, "url", photo.URL)
		return job, photo, nil
	}
	if ctx.Err() != nil || errors.Is(err, common.ErrAuthExpired) {
		log.Info(ctx, "upload interrupted", "stage", string(job.Stage), "error", err)
		return job, nil, fmt.Errorf("%w: %w", common.ErrUploadInterrupted, err)
	}
	if common.IsRetryable(err) {
		return job, nil, err
	}
	return job, nil, s.Abandon(ctx, job, err)
}

func (s *UploadService) run(ctx context.Context, log logging.Logger, job models.UploadJob, checkpoint Checkpoint) (models.UploadJob, *models.Photo, error) {
	save := func(j models.UploadJob) {
		if checkpoint == nil {
			return
		}
		if err := checkpoint(context.WithoutCancel(ctx), j); err != nil {
			log.Warn(ctx, "checkpoint failed", "stage", string(j.Stage), "error", err)
		}
	}

	if job.Stage == models.StageRequested && (job.Params == nil || job.Params.ExpiredAt(s.now())) {
		s.orphan(ctx, log, job.PhotoID, common.ErrSignatureExpired)
		job = job.Restarted()
		save(job)
	}

	for restarts := 0; ; restarts++ {
		if job.Stage == models.StagePending {
			var ticket *client.UploadTicket
			err := s.step(ctx, log, "request", func(ctx context.Context) error {
				var err error
				ticket, err = s.api.RequestUpload(ctx, client.UploadRequest{
					FileName:   job.FileName,
					MimeType:   job.MimeType,
					Size:       len(job.Image),
					CapturedAt: job.CapturedAt,
					Latitude:   job.Latitude,
					Longitude:  job.Longitude,
					LocationID: job.LocationID,
					ClientID:   job.ClientID.String(),
				})
				return err
			})
			if err != nil {
				return job, nil, err
			}
			job = job.Requested(ticket.PhotoID, ticket.Params)
			log.Info(ctx, "upload requested", "photo_id", job.PhotoID, "target", job.Params.TargetPath())
			save(job)
		}

		if job.Stage != models.StageRequested {
			break
		}

		// The signature may have lapsed while step 1 was being retried.
		if job.Params.ExpiredAt(s.now()) {
			if restarts > 0 {
				return job, nil, common.ErrSignatureExpired
			}
			s.orphan(ctx, log, job.PhotoID, common.ErrSignatureExpired)
			job = job.Restarted()
			save(job)
			continue
		}

		var result models.StorageResult
		params := *job.Params
		err := s.step(ctx, log, "upload", func(ctx context.Context) error {
			var err error
			result, err = s.storage.Upload(ctx, params, job.Image, job.MimeType)
			return err
		})
		if err != nil {
			return job, nil, err
		}

		switch r := result.(type) {
		case models.StorageSuccess:
			job = job.Stored(r.FileID, r.URL)
			log.Info(ctx, "media stored", "photo_id", job.PhotoID, "file_id", r.FileID)
			save(job)
		case models.StorageMalformed:
			log.Error(ctx, "storage answered without a file", "photo_id", job.PhotoID, "reason", r.Reason)
			// The signature counts as spent.
			return job, nil, fmt.Errorf("%w: %s", common.ErrInvalidUploadResponse, r.Reason)
		default:
			return job, nil, fmt.Errorf("%w: unexpected storage result %T", common.ErrInvalidUploadResponse, result)
		}
		break
	}

	var photo *models.Photo
	err := s.step(ctx, log, "confirm", func(ctx context.Context) error {
		var err error
		photo, err = s.api.Confirm(ctx, job.PhotoID, job.FileID, job.FileURL)
		return err
	})
	if err != nil {
		return job, nil, err
	}
	return job, photo, nil
}

// step runs fn with bounded retries for transient failures. A 401 is
// retried once: by then the session has reacted to it.
func (s *UploadService) step(ctx context.Context, log logging.Logger, name string, fn func(ctx context.Context) error) error {
	attempt := 0
	reauthorized := false
	base := max(s.opts.StepBackoff, time.Millisecond)
	backoff := retry.WithMaxRetries(uint64(max(s.opts.StepRetries, 0)), retry.NewExponential(base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		log.Warn(ctx, "upload step failed", "step", name, "attempt", attempt, "error", err)

		switch {
		case ctx.Err() != nil:
			return err
		case errors.Is(err, common.ErrUnauthorized) && !reauthorized:
			reauthorized = true
			return retry.RetryableError(err)
		case common.IsRetryable(err):
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Abandon gives up on job for good. When step 1 already created the backend
// placeholder the result is a *common.PartialUploadError; with
// DiscardOrphans set the placeholder is also deleted, best effort.
func (s *UploadService) Abandon(ctx context.Context, job models.UploadJob, cause error) error {
	if job.PhotoID == "" {
		return cause
	}
	s.orphan(ctx, s.log.With("client_id", job.ClientID.String()), job.PhotoID, cause)
	return &common.PartialUploadError{PhotoID: job.PhotoID, Cause: cause}
}

func (s *UploadService) orphan(ctx context.Context, log logging.Logger, photoID string, cause error) {
	if photoID == "" {
		return
	}
	if !s.opts.DiscardOrphans {
		log.Warn(ctx, "photo placeholder left without media", "photo_id", photoID, "cause", cause)
		return
	}
	if err := s.api.DeletePhoto(context.WithoutCancel(ctx), photoID); err != nil {
		log.Warn(ctx, "could not delete orphaned placeholder", "photo_id", photoID, "error", err)
		return
	}
	log.Info(ctx, "orphaned placeholder deleted", "photo_id", photoID)
}
