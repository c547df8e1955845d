package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when no account matches, so a miss costs
// roughly the same as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("coachhub-no-such-user"), bcrypt.DefaultCost)
	return h
})

// HashPassword hashes a plain text password with bcrypt.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a plaintext password.
func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// BurnPasswordCheck spends the same work as CheckPassword without a stored hash.
func BurnPasswordCheck(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(plain))
}

// CheckLegacyPassword compares a plaintext record written by the previous
// backend in constant time.
func CheckLegacyPassword(stored, plain string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(plain)) == 1
}

// NewResetToken returns 32 random bytes, hex encoded.
func NewResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
