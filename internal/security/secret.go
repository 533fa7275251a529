package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret returns a bcrypt hash of a secondary secret key.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// LegacyHash returns the unsalted SHA-256 hex digest used by imported accounts.
func LegacyHash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecret reports whether secret matches stored. Stored values starting
// with "$2" are bcrypt hashes; anything else is a SHA-256 hex digest.
// An empty stored hash never matches.
func VerifySecret(stored, secret string) bool {
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret)) == nil
	}
	want := strings.ToLower(stored)
	got := LegacyHash(secret)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
