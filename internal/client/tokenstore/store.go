// Package tokenstore keeps the single OAuth credential encrypted at rest.
//
// The credential is JSON-encoded and sealed with AES-256-GCM under a key
// derived from the device passphrase and a per-database salt. Reads and
// writes are serialised by one lock; a save replaces the stored row in a
// single statement, so a reader never sees a half-written credential.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/geosnap/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/dmitrijs2005/geosnap/internal/cryptox"
	"github.com/dmitrijs2005/geosnap/internal/logging"
)

const (
	saltSize = 16

	// DefaultLeadWindow is how long before expiry a token is refreshed.
	DefaultLeadWindow = 5 * time.Minute
)

type Store struct {
	mu sync.RWMutex

	repo credentials.Repository
	key  []byte
	lead time.Duration
	now  func() time.Time
	log  logging.Logger

	// cached is the decrypted credential; loaded tells whether cached reflects
	// the database (nil then means nothing stored).
	cached *models.Credential
	loaded bool
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLeadWindow(d time.Duration) Option {
	return func(s *Store) { s.lead = d }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open derives the sealing key for this database. The salt is created on
// first use and reused afterwards.
func Open(ctx context.Context, repo credentials.Repository, meta metadata.Repository, passphrase []byte, opts ...Option) (*Store, error) {
	salt, err := meta.SetIfAbsent(ctx, metadata.KeyDeviceSalt, common.GenerateRandByteArray(saltSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read device salt: %w", common.ErrStorage, err)
	}
	return New(repo, cryptox.DeriveKey(passphrase, salt), opts...), nil
}

// New builds a store over an already derived key.
func New(repo credentials.Repository, key []byte, opts ...Option) *Store {
	s := &Store{
		repo: repo,
		key:  key,
		lead: DefaultLeadWindow,
		now:  time.Now,
		log:  logging.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save replaces the stored credential.
func (s *Store) Save(ctx context.Context, c models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ct, nonce, err := cryptox.SealJSON(c, s.key)
	if err != nil {
		return fmt.Errorf("%w: seal credential: %w", common.ErrStorage, err)
	}

	if err := s.repo.Save(ctx, credentials.Sealed{Ciphertext: ct, Nonce: nonce, UpdatedAt: s.now()}); err != nil {
		// The row may or may not have been written; force a reload.
		s.cached, s.loaded = nil, false
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	s.cached, s.loaded = &c, true
	s.log.Debug(ctx, "credential saved",
		"subject_id", c.SubjectID,
		"access_token", logging.RedactToken(c.AccessToken),
		"expires_at", c.ExpiresAt)
	return nil
}

// Credential returns a copy of the stored credential or ErrNoCredential.
func (s *Store) Credential(ctx context.Context) (models.Credential, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		if s.cached == nil {
			return models.Credential{}, common.ErrNoCredential
		}
		return *s.cached, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if err := s.loadLocked(ctx); err != nil {
			return models.Credential{}, err
		}
	}
	if s.cached == nil {
		return models.Credential{}, common.ErrNoCredential
	}
	return *s.cached, nil
}

func (s *Store) loadLocked(ctx context.Context) error {
	sealed, err := s.repo.Load(ctx)
	if errors.Is(err, credentials.ErrNotFound) {
		s.cached, s.loaded = nil, true
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	var c models.Credential
	if err := cryptox.OpenJSON(sealed.Ciphertext, sealed.Nonce, s.key, &c); err != nil {
		return fmt.Errorf("%w: open credential: %w", common.ErrStorage, err)
	}
	s.cached, s.loaded = &c, true
	return nil
}

func (s *Store) AccessToken(ctx context.Context) (string, error) {
	c, err := s.Credential(ctx)
	if err != nil {
		return "", err
	}
	return c.AccessToken, nil
}

func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	c, err := s.Credential(ctx)
	if err != nil {
		return "", err
	}
	return c.RefreshToken, nil
}

// IsExpired reports whether the access token has passed its expiry.
func (s *Store) IsExpired(ctx context.Context) (bool, error) {
	c, err := s.Credential(ctx)
	if err != nil {
		return false, err
	}
	return c.ExpiredAt(s.now()), nil
}

// NeedsRefresh is true iff now + lead window >= expiresAt.
func (s *Store) NeedsRefresh(ctx context.Context) (bool, error) {
	c, err := s.Credential(ctx)
	if err != nil {
		return false, err
	}
	return c.NeedsRefreshAt(s.now(), s.lead), nil
}

// Clear removes the credential. Clearing an empty store succeeds.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx); err != nil {
		s.cached, s.loaded = nil, false
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	s.cached, s.loaded = nil, true
	s.log.Debug(ctx, "credential cleared")
	return nil
}

// Close wipes the sealing key from memory.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	common.WipeByteArray(s.key)
	s.cached, s.loaded = nil, false
}
