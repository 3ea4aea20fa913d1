package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, s Sealed) error {
	query := `INSERT INTO credentials (id, ciphertext, nonce, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query, s.Ciphertext, s.Nonce, s.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context) (*Sealed, error) {
	var (
		s       Sealed
		updated string
	)
	err := r.db.QueryRowContext(ctx, `SELECT ciphertext, nonce, updated_at FROM credentials WHERE id = 1`).
		Scan(&s.Ciphertext, &s.Nonce, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credential timestamp: %w", err)
	}
	return &s, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
