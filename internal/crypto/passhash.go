// Package crypto implements password hashing and verification for library accounts.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLen             = 16
	scheme              = "argon2id"
)

// ErrMalformedHash is returned for stored hashes that are not in the argon2id$salt$key format.
var ErrMalformedHash = errors.New("malformed password hash")

var b64 = base64.RawStdEncoding

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns the Argon2id key of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword verifies password against expected Argon2id key and salt.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// Encode hashes password with a fresh salt and returns "argon2id$<salt>$<key>".
func Encode(password string) (string, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return "", err
	}
	key := HashPassword([]byte(password), salt)
	return scheme + "$" + b64.EncodeToString(salt) + "$" + b64.EncodeToString(key), nil
}

// Verify checks password against an encoded hash produced by Encode.
func Verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != scheme {
		return false, ErrMalformedHash
	}
	salt, err := b64.DecodeString(parts[1])
	if err != nil {
		return false, ErrMalformedHash
	}
	key, err := b64.DecodeString(parts[2])
	if err != nil || len(key) == 0 {
		return false, ErrMalformedHash
	}
	return VerifyPassword([]byte(password), salt, key), nil
}
