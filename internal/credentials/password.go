package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	defaultIterations = 10000
	defaultKeyLength  = 32
	defaultSaltLength = 32
	minIterations     = 10000
)

// PasswordHasherConfig tunes the key-derivation parameters. Zero values fall
// back to the defaults; iterations below the floor are raised to it.
type PasswordHasherConfig struct {
	Iterations int
	KeyLength  int
	SaltLength int
	Rand       io.Reader
}

// PasswordHasher derives and verifies salted PBKDF2-SHA256 password hashes.
type PasswordHasher struct {
	iterations int
	keyLength  int
	saltLength int
	rand       io.Reader
}

// NewPasswordHasher constructs a hasher with sane defaults.
func NewPasswordHasher(cfg PasswordHasherConfig) *PasswordHasher {
	iterations := cfg.Iterations
	if iterations < minIterations {
		iterations = defaultIterations
	}
	keyLength := cfg.KeyLength
	if keyLength <= 0 {
		keyLength = defaultKeyLength
	}
	saltLength := cfg.SaltLength
	if saltLength <= 0 {
		saltLength = defaultSaltLength
	}
	randSource := cfg.Rand
	if randSource == nil {
		randSource = rand.Reader
	}
	return &PasswordHasher{
		iterations: iterations,
		keyLength:  keyLength,
		saltLength: saltLength,
		rand:       randSource,
	}
}

// HashPassword generates a fresh random salt and derives the stored hash.
// The plaintext is never retained.
func (h *PasswordHasher) HashPassword(plaintext string) (saltHex string, hashHex string, err error) {
	salt := make([]byte, h.saltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", "", fmt.Errorf("credentials: salt generation failed: %w", err)
	}
	derived := pbkdf2.Key([]byte(plaintext), salt, h.iterations, h.keyLength, sha256.New)
	return hex.EncodeToString(salt), hex.EncodeToString(derived), nil
}

// VerifyPassword re-derives with the stored salt and compares in constant
// time. It fails closed when no salt or hash has been set.
func (h *PasswordHasher) VerifyPassword(saltHex, hashHex, supplied string) bool {
	if saltHex == "" || hashHex == "" {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	stored, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}
	derived := pbkdf2.Key([]byte(supplied), salt, h.iterations, len(stored), sha256.New)
	return subtle.ConstantTimeCompare(derived, stored) == 1
}
