package credentials

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE credentials (
  id         INTEGER PRIMARY KEY CHECK (id = 1),
  ciphertext BLOB NOT NULL,
  nonce      BLOB NOT NULL,
  updated_at TEXT NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestLoad_EmptyReturnsNotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSave_OverwritesSingleRow(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.Save(ctx, Sealed{Ciphertext: []byte("c1"), Nonce: []byte("n1"), UpdatedAt: now}))
	require.NoError(t, r.Save(ctx, Sealed{Ciphertext: []byte("c2"), Nonce: []byte("n2"), UpdatedAt: now.Add(time.Hour)}))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&n))
	assert.Equal(t, 1, n)

	got, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("c2"), got.Ciphertext)
	assert.Equal(t, []byte("n2"), got.Nonce)
	assert.True(t, got.UpdatedAt.Equal(now.Add(time.Hour)))
}

func TestDelete_Idempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Delete(ctx))
	require.NoError(t, r.Save(ctx, Sealed{Ciphertext: []byte("c"), Nonce: []byte("n"), UpdatedAt: time.Now()}))
	require.NoError(t, r.Delete(ctx))
	require.NoError(t, r.Delete(ctx))

	_, err := r.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_DriverErrorIsNotNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT ciphertext, nonce, updated_at FROM credentials").
		WillReturnError(errors.New("disk I/O error"))

	_, err = NewSQLiteRepository(db).Load(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "failed to load credential")
}

func TestSave_DriverErrorWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO credentials").WillReturnError(errors.New("readonly database"))

	err = NewSQLiteRepository(db).Save(context.Background(), Sealed{UpdatedAt: time.Now()})
	require.ErrorContains(t, err, "failed to save credential")
}
