package metadata

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/geosnap/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SetIfAbsent is a single statement so two processes opening the same
// database agree on one value.
func (r *SQLiteRepository) SetIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error) {
	var stored []byte
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = metadata.value
		RETURNING value
	`, key, value).Scan(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return stored, nil
}
