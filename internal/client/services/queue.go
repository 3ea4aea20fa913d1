package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/client/repositories/uploadjobs"
	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/dmitrijs2005/geosnap/internal/logging"
	"golang.org/x/sync/errgroup"
)

// JobRunner executes a queued job. UploadService implements it.
type JobRunner interface {
	Run(ctx context.Context, job models.UploadJob, checkpoint Checkpoint) (models.UploadJob, *models.Photo, error)
	Abandon(ctx context.Context, job models.UploadJob, cause error) error
}

type QueueOptions struct {
	// MaxRetries is the number of failed replays after which a job is dropped.
	MaxRetries int
	// Workers bounds concurrent uploads during a replay.
	Workers int
}

func DefaultQueueOptions() QueueOptions {
	return QueueOptions{MaxRetries: 3, Workers: 3}
}

// Queue is the durable offline retry queue. Jobs are immutable snapshots;
// every change is written back with a whole-snapshot replace.
type Queue struct {
	repo uploadjobs.Repository
	opts QueueOptions
	log  logging.Logger

	// replaying serialises Replay calls.
	replaying sync.Mutex
}

func NewQueue(repo uploadjobs.Repository, opts QueueOptions, log logging.Logger) *Queue {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultQueueOptions().MaxRetries
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Queue{repo: repo, opts: opts, log: log}
}

// Enqueue adds job with a fresh retry count. A job whose client id is
// already queued is rejected with common.ErrDuplicateJob.
func (q *Queue) Enqueue(ctx context.Context, job models.UploadJob) error {
	job.RetryCount = 0
	if err := q.repo.Enqueue(ctx, job); err != nil {
		return err
	}
	q.log.Info(ctx, "job queued", "client_id", job.ClientID.String(), "stage", string(job.Stage))
	return nil
}

// List returns queued jobs, oldest first.
func (q *Queue) List(ctx context.Context) ([]models.UploadJob, error) {
	return q.repo.List(ctx)
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.repo.Count(ctx)
}

// Replay runs every queued job through runner, starting them in FIFO order
// with at most Workers in flight. Succeeded and terminally failed jobs are
// removed; transient failures stay queued with one more retry counted until
// MaxRetries is reached. Jobs interrupted by ctx or by the session ending
// stay queued unchanged.
func (q *Queue) Replay(ctx context.Context, runner JobRunner) ([]models.UploadOutcome, error) {
	q.replaying.Lock()
	defer q.replaying.Unlock()

	jobs, err := q.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	q.log.Info(ctx, "replaying upload queue", "jobs", len(jobs))

	outcomes := make([]models.UploadOutcome, len(jobs))
	started := 0

	var g errgroup.Group
	g.SetLimit(q.opts.Workers)
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		started++
		g.Go(func() error {
			outcomes[i] = q.replayOne(ctx, runner, job)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes[:started], ctx.Err()
}

func (q *Queue) replayOne(ctx context.Context, runner JobRunner, job models.UploadJob) models.UploadOutcome {
	out := models.UploadOutcome{ClientID: job.ClientID, FileName: job.FileName}
	log := q.log.With("client_id", job.ClientID.String())

	checkpoint := func(ctx context.Context, j models.UploadJob) error {
		return q.repo.Replace(ctx, j)
	}

	updated, photo, err := runner.Run(ctx, job, checkpoint)
	switch {
	case err == nil:
		out.Photo = photo
		q.remove(ctx, log, job)

	case ctx.Err() != nil || errors.Is(err, common.ErrUploadInterrupted):
		log.Info(ctx, "replay interrupted, job stays queued", "stage", string(updated.Stage))
		out.Err = err

	case common.IsRetryable(err):
		updated = updated.Failed(err)
		if updated.RetryCount >= q.opts.MaxRetries {
			cause := runner.Abandon(ctx, updated, err)
			q.remove(ctx, log, job)
			log.Warn(ctx, "job dropped", "attempts", updated.RetryCount, "error", err)
			out.Err = fmt.Errorf("%w after %d attempts: %w", common.ErrRetryExhausted, updated.RetryCount, cause)
			break
		}
		if rerr := q.repo.Replace(ctx, updated); rerr != nil {
			log.Error(ctx, "could not record failed attempt", "error", rerr)
			out.Err = errors.Join(err, rerr)
			break
		}
		log.Info(ctx, "job stays queued", "attempt", updated.RetryCount, "error", err)
		out.Err = fmt.Errorf("%w: %w", common.ErrQueued, err)

	default:
		// Run already abandoned it.
		q.remove(ctx, log, job)
		log.Warn(ctx, "job failed permanently", "error", err)
		out.Err = err
	}
	return out
}

func (q *Queue) remove(ctx context.Context, log logging.Logger, job models.UploadJob) {
	if err := q.repo.Delete(ctx, job.ClientID); err != nil {
		log.Error(ctx, "could not remove job", "error", err)
	}
}
