package cli

import (
	"context"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/client/services"
	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListQueue(t *testing.T) {
	lines := capturePrint(t)
	a, _, _, q := newTestApp("")

	require.NoError(t, a.ListQueue(context.Background()))
	assert.Equal(t, []string{"No queued uploads."}, *lines)

	*lines = (*lines)[:0]
	q.jobs = []models.UploadJob{
		{ClientID: uuid.New(), FileName: "a.jpg", LocationID: "l1", Stage: models.StagePending},
		{ClientID: uuid.New(), FileName: "b.jpg", LocationID: "l2", Stage: models.StageRequested, RetryCount: 2, LastError: "network unavailable"},
	}
	require.NoError(t, a.ListQueue(context.Background()))
	require.Len(t, *lines, 2)
	assert.Contains(t, (*lines)[0], "a.jpg")
	assert.Contains(t, (*lines)[1], "stage=requested")
	assert.Contains(t, (*lines)[1], "retries=2")
	assert.Contains(t, (*lines)[1], "last error: network unavailable")
}

func TestRetry_PrintsEachOutcome(t *testing.T) {
	lines := capturePrint(t)
	a, s, _, q := newTestApp("")
	s.state = services.StateAuthenticated
	q.outcomes = []models.UploadOutcome{
		{FileName: "ok.jpg", Photo: &models.Photo{ID: "p1"}},
		{FileName: "wait.jpg", Err: fmt.Errorf("%w: %w", common.ErrQueued, common.ErrNetworkUnavailable)},
		{FileName: "gone.jpg", Err: fmt.Errorf("%w after 3 attempts: %w", common.ErrRetryExhausted,
			&common.PartialUploadError{PhotoID: "p2", Cause: common.ErrNetworkUnavailable})},
		{FileName: "bad.jpg", Err: common.ErrRejected},
		{FileName: "cut.jpg", Err: fmt.Errorf("%w: %w", common.ErrUploadInterrupted, context.Canceled)},
	}

	require.NoError(t, a.Retry(context.Background()))

	require.Len(t, *lines, 5)
	assert.Contains(t, (*lines)[0], "uploaded as photo p1")
	assert.Contains(t, (*lines)[1], "will retry")
	assert.Contains(t, (*lines)[2], "placeholder photo p2")
	assert.Contains(t, (*lines)[3], "failed")
	assert.Contains(t, (*lines)[4], "stays queued")
}

func TestRetry_NeedsLogin(t *testing.T) {
	capturePrint(t)
	a, _, _, q := newTestApp("")

	require.NoError(t, a.Retry(context.Background()))
	assert.Zero(t, q.replays)
}

func TestStatus(t *testing.T) {
	lines := capturePrint(t)
	a, s, _, q := newTestApp("")
	s.state = services.StateAuthenticated
	q.jobs = make([]models.UploadJob, 2)

	require.NoError(t, a.Status(context.Background()))
	assert.Equal(t, []string{"session: authenticated, connectivity: unknown, queued uploads: 2"}, *lines)
}
