// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen int
	KeyLen  uint32
}

// DefaultArgon2Params returns OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an encoded hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)
}

// Argon2idHasher implements PasswordHasher using argon2id in PHC string format.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher with DefaultArgon2Params.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates a hasher with custom parameters.
// Tests use cheap parameters to keep runs fast.
func NewArgon2idHasherWithParams(p Argon2Params) *Argon2idHasher {
	return &Argon2idHasher{params: p}
}

// Hash produces $argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt>$<hash>.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an encoded hash using the parameters stored
// in the hash, not the hasher's own.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	p, salt, expected, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// IsArgon2idHash reports whether s looks like an argon2id PHC string.
func IsArgon2idHash(s string) bool {
	return strings.HasPrefix(s, "$argon2id$")
}

func decodeHash(encoded string) (Argon2Params, []byte, []byte, error) {
	invalid := oops.Code("AUTH_INVALID_HASH")

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return Argon2Params{}, nil, nil, invalid.Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, invalid.Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, nil, invalid.Wrap(err)
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, nil, invalid.Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return Argon2Params{}, nil, nil, invalid.Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return Argon2Params{}, nil, nil, invalid.Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, invalid.Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, invalid.Wrap(err)
	}
	if len(key) == 0 || len(key) > 1024 {
		return Argon2Params{}, nil, nil, invalid.Errorf("invalid hash key length: %d", len(key))
	}

	return Argon2Params{
		Time:    iterations,
		Memory:  memory,
		Threads: uint8(threads),
		SaltLen: len(salt),
		KeyLen:  uint32(len(key)),
	}, salt, key, nil
}

var _ PasswordHasher = (*Argon2idHasher)(nil)
