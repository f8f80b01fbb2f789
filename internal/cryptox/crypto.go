// Package cryptox implements password hashing with argon2id.
//
// Hashes are encoded as "$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>" with
// unpadded base64 salt and key, so parameters can change without
// invalidating stored hashes.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	saltLen    = 16
	keyLen     = 32
	memory     = 64 * 1024
	iterations = 1
	threads    = 4
)

var ErrMalformedHash = errors.New("malformed password hash")

func deriveKey(password, salt []byte, t, m uint32, p uint8) []byte {
	return argon2.IDKey(password, salt, t, m, p, keyLen)
}

// HashPassword returns an encoded argon2id hash of password using a fresh
// random salt.
func HashPassword(password string) string {
	salt := common.GenerateRandByteArray(saltLen)
	key := deriveKey([]byte(password), salt, iterations, memory, threads)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

// VerifyPassword reports whether password matches the encoded hash.
func VerifyPassword(encoded, password string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrMalformedHash
	}

	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrMalformedHash
	}

	got := deriveKey([]byte(password), salt, t, m, p)
	defer common.WipeByteArray(got)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
