package uploadjobs

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("upload job not found")

type Repository interface {
	// Enqueue appends job to the tail. A job whose client id is already
	// queued is rejected with common.ErrDuplicateJob.
	Enqueue(ctx context.Context, job models.UploadJob) error

	// List returns all jobs, oldest first.
	List(ctx context.Context) ([]models.UploadJob, error)

	Get(ctx context.Context, id uuid.UUID) (*models.UploadJob, error)

	// Replace overwrites the stored snapshot, keeping its queue position.
	Replace(ctx context.Context, job models.UploadJob) error

	// Delete removes a job. Removing a missing job is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	Count(ctx context.Context) (int, error)

	// Clear drops every queued job.
	Clear(ctx context.Context) error
}
