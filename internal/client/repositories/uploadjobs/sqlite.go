package uploadjobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/dmitrijs2005/geosnap/internal/dbx"
	"github.com/google/uuid"
)

const columns = `client_id, image, mime_type, file_name, location_id, latitude, longitude,
	captured_at, retry_count, last_error, stage, photo_id, params, file_id, file_url`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, j models.UploadJob) error {
	params, err := encodeParams(j.Params)
	if err != nil {
		return err
	}

	query := `INSERT INTO upload_jobs (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		j.ClientID.String(), j.Image, j.MimeType, j.FileName, j.LocationID,
		nullFloat(j.Latitude), nullFloat(j.Longitude), formatTime(j.CapturedAt),
		j.RetryCount, j.LastError, stageOrPending(j.Stage), j.PhotoID, params, j.FileID, j.FileURL)
	if err != nil {
		return fmt.Errorf("failed to enqueue upload job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", common.ErrDuplicateJob, j.ClientID)
	}

	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.UploadJob, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM upload_jobs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("error selecting upload jobs: %w", err)
	}
	defer rows.Close()

	var result []models.UploadJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id uuid.UUID) (*models.UploadJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM upload_jobs WHERE client_id = ?`, id.String())
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *SQLiteRepository) Replace(ctx context.Context, j models.UploadJob) error {
	params, err := encodeParams(j.Params)
	if err != nil {
		return err
	}

	query := `UPDATE upload_jobs SET retry_count = ?, last_error = ?, stage = ?,
			photo_id = ?, params = ?, file_id = ?, file_url = ?
		WHERE client_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		j.RetryCount, j.LastError, stageOrPending(j.Stage), j.PhotoID, params, j.FileID, j.FileURL,
		j.ClientID.String())
	if err != nil {
		return fmt.Errorf("failed to replace upload job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return ErrNotFound
	}

	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_jobs WHERE client_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete upload job: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_jobs`); err != nil {
		return fmt.Errorf("failed to clear upload jobs: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count upload jobs: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*models.UploadJob, error) {
	var (
		j          models.UploadJob
		clientID   string
		lat, lng   sql.NullFloat64
		capturedAt string
		stage      string
		params     []byte
	)

	err := s.Scan(&clientID, &j.Image, &j.MimeType, &j.FileName, &j.LocationID, &lat, &lng,
		&capturedAt, &j.RetryCount, &j.LastError, &stage, &j.PhotoID, &params, &j.FileID, &j.FileURL)
	if err != nil {
		return nil, err
	}

	if j.ClientID, err = uuid.Parse(clientID); err != nil {
		return nil, fmt.Errorf("bad client id %q: %w", clientID, err)
	}
	if j.CapturedAt, err = time.Parse(time.RFC3339Nano, capturedAt); err != nil {
		return nil, fmt.Errorf("bad captured_at %q: %w", capturedAt, err)
	}
	if lat.Valid {
		j.Latitude = &lat.Float64
	}
	if lng.Valid {
		j.Longitude = &lng.Float64
	}
	j.Stage = models.UploadStage(stage)

	if len(params) > 0 {
		var p models.SignedUploadParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("bad params for job %s: %w", clientID, err)
		}
		j.Params = &p
	}

	return &j, nil
}

func encodeParams(p *models.SignedUploadParams) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload params: %w", err)
	}
	return b, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func stageOrPending(s models.UploadStage) string {
	if s == "" {
		return string(models.StagePending)
	}
	return string(s)
}
