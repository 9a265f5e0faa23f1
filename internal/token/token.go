// Package token implements the bearer token format used for machine-to-machine
// status updates.
//
// A token is "ast_" followed by 64 lowercase hex characters (32 random bytes).
// The fixed prefix and length let callers reject malformed input before any
// storage lookup. Tokens are stored only as their SHA-256 hex digest.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// Prefix marks a status API token.
	Prefix = "ast_"
	// SecretBytes is the number of random bytes in a token.
	SecretBytes = 32
	// Length is the total length of a well-formed token.
	Length = len(Prefix) + SecretBytes*2

	// displayChars is how many hex chars of the secret are kept for display.
	displayChars = 6
)

// Generate returns a new random token.
func Generate() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return Prefix + hex.EncodeToString(b), nil
}

// Hash returns the hex-encoded SHA-256 digest of raw. It is deterministic and
// is the only form of the token that is ever persisted.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ValidFormat reports whether raw has the token prefix, the exact length, and
// a lowercase hex suffix.
func ValidFormat(raw string) bool {
	if len(raw) != Length || !strings.HasPrefix(raw, Prefix) {
		return false
	}
	for i := len(Prefix); i < len(raw); i++ {
		c := raw[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// DisplayPrefix returns a non-secret label such as "ast_1a2b3c" that lets a
// user tell tokens apart in listings.
func DisplayPrefix(raw string) string {
	if len(raw) < len(Prefix)+displayChars {
		return Prefix
	}
	return raw[:len(Prefix)+displayChars]
}

// FromAuthorizationHeader extracts a well-formed token from an
// "Authorization: Bearer <token>" header value. The scheme match is
// case-insensitive. It returns false when the header is absent, uses another
// scheme, or carries a malformed token.
func FromAuthorizationHeader(h string) (string, bool) {
	const scheme = "bearer "
	h = strings.TrimSpace(h)
	if len(h) <= len(scheme) || !strings.EqualFold(h[:len(scheme)], scheme) {
		return "", false
	}
	raw := strings.TrimSpace(h[len(scheme):])
	if !ValidFormat(raw) {
		return "", false
	}
	return raw, true
}
