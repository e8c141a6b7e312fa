// Package appcred wraps a memory-hard password hash (argon2id) used to
// verify the pre-shared credentials that gate a registration.
package appcred

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
	keyLen  = 32
	argTime    uint32 = 1
	argMemory  uint32 = 64 * 1024
	argThreads uint8  = 4
)

// GenerateProcessSecret returns a fresh random 128-bit identifier suitable
// for use as the process-wide argon2 additional-data secret when no
// --secret_key is configured. It is generated once at process start and
// used for the process lifetime; credentials hashed against it do not
// survive a restart with a different secret.
func GenerateProcessSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("appcred: generate process secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash derives an argon2id-encoded hash of secret, with processSecret mixed
// in as additional password material. It fails with ErrUnhashableKey only
// if the salt cannot be generated.
func Hash(secret, processSecret string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnhashableKey, err)
	}

	key := derive(secret, processSecret, salt)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argMemory, argTime, argThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether secret (plus processSecret as additional data)
// matches the previously hashed value. Any decode or parameter mismatch is
// treated as a failed verification rather than propagated as an error —
// callers should log the returned false at their discretion.
func Verify(hash, secret, processSecret string) bool {
	memory, time, threads, salt, key, ok := decode(hash)
	if !ok {
		return false
	}

	candidate := argon2.IDKey([]byte(secret+processSecret), salt, time, memory, threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

func derive(secret, processSecret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret+processSecret), salt, argTime, argMemory, argThreads, keyLen)
}

// decode parses the PHC-like string produced by Hash. It never panics on
// malformed input; ok is false for anything it cannot fully parse.
func decode(encoded string) (memory uint32, time uint32, threads uint8, salt, key []byte, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, false
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return 0, 0, 0, nil, nil, false
	}

	var err error
	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, false
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, false
	}

	return memory, time, threads, salt, key, true
}
