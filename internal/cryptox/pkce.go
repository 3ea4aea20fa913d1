package cryptox

import (
	"golang.org/x/oauth2"
)

const (
	minVerifierLen = 43
	maxVerifierLen = 128
)

// NewPKCE returns a fresh code verifier (32 random bytes, base64url without
// padding) and its S256 challenge. The underlying generator panics if the
// system entropy source fails; there is no safe way to continue a login then.
func NewPKCE() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, S256Challenge(verifier)
}

// S256Challenge is base64url(SHA-256(verifier)) without padding.
func S256Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// ValidVerifier reports whether v has an RFC 7636 length and alphabet.
func ValidVerifier(v string) bool {
	if len(v) < minVerifierLen || len(v) > maxVerifierLen {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}
