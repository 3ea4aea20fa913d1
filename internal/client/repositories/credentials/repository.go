// Package credentials persists the sealed OAuth credential. The table holds
// at most one row; writes replace it in a single statement.
package credentials

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when nothing is stored.
var ErrNotFound = errors.New("credential not found")

// Sealed is the encrypted credential blob as stored on disk.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	UpdatedAt  time.Time
}

type Repository interface {
	Save(ctx context.Context, s Sealed) error
	Load(ctx context.Context) (*Sealed, error)
	// Delete is idempotent.
	Delete(ctx context.Context) error
}
