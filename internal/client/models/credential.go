// Package models defines the client-side data model: the OAuth credential,
// PKCE material, captures and the persisted upload jobs.
package models

import "time"

// Credential is the token pair issued by the authorization server.
// At most one exists at a time; it is owned by the token store.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SubjectID    string    `json:"subject_id"`
}

// ExpiredAt reports whether the access token is unusable at now.
func (c Credential) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// NeedsRefreshAt reports whether now+lead has reached the expiry.
func (c Credential) NeedsRefreshAt(now time.Time, lead time.Duration) bool {
	return !now.Add(lead).Before(c.ExpiresAt)
}

// PKCEPair is the per-login proof key. The verifier stays on the device
// and is consumed by exactly one code exchange; only the challenge travels
// in the authorization URL.
type PKCEPair struct {
	Verifier  string
	Challenge string
	State     string
}
