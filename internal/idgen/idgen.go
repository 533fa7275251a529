// Package idgen provides identifier and one-time code generation.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// New generates a random UUID string.
func New() string {
	return uuid.NewString()
}

// WithPrefix generates a random ID with a prefix (e.g. "req_", "flog_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// TransactionID returns a placeholder transaction ID for transfers where the
// caller did not supply one: "TEMP_" + 6 hex chars.
func TransactionID() string {
	u := uuid.New()
	return "TEMP_" + strings.ToUpper(hex.EncodeToString(u[:3]))
}

var ten = big.NewInt(10)

// Digits returns a string of n uniformly random decimal digits.
func Digits(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String()
}
