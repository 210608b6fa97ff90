// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package auth

import (
	"context"
	"strings"

	"github.com/samber/oops"
)

// CredentialChecker decides whether an email/password pair is valid.
type CredentialChecker interface {
	// Check returns (true, nil) on match and (false, nil) on mismatch.
	// An error means the check itself could not run.
	Check(ctx context.Context, email, password string) (bool, error)
}

// StaticCredentials accepts a single configured credential.
// An empty email accepts any email, so only the password is compared.
type StaticCredentials struct {
	email  string
	hash   string
	hasher PasswordHasher
}

// NewStaticCredentials creates a checker for one argon2id password hash.
func NewStaticCredentials(email, passwordHash string, hasher PasswordHasher) (*StaticCredentials, error) {
	if hasher == nil {
		return nil, oops.Code("CONFIG_MISSING").Errorf("password hasher is required")
	}
	if passwordHash == "" {
		return nil, oops.Code("CONFIG_MISSING").Errorf("password hash is required")
	}
	if !IsArgon2idHash(passwordHash) {
		return nil, oops.Code("CONFIG_INVALID").Errorf("password hash must be an argon2id PHC string")
	}
	return &StaticCredentials{
		email:  strings.TrimSpace(email),
		hash:   passwordHash,
		hasher: hasher,
	}, nil
}

// NewStaticCredentialsFromPassword hashes password once at startup so the
// plaintext is not kept in memory beyond construction.
func NewStaticCredentialsFromPassword(email, password string, hasher PasswordHasher) (*StaticCredentials, error) {
	if hasher == nil {
		return nil, oops.Code("CONFIG_MISSING").Errorf("password hasher is required")
	}
	if password == "" {
		return nil, oops.Code("CONFIG_MISSING").Errorf("password is required")
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "hash configured password").Wrap(err)
	}
	return NewStaticCredentials(email, hash, hasher)
}

// Check compares email case-insensitively and the password in constant time.
// The password is always verified so both branches cost the same.
func (c *StaticCredentials) Check(_ context.Context, email, password string) (bool, error) {
	emailOK := c.email == "" || strings.EqualFold(strings.TrimSpace(email), c.email)

	valid, err := c.hasher.Verify(password, c.hash)
	if err != nil {
		return false, oops.Code("AUTH_CHECK_FAILED").With("operation", "verify password").Wrap(err)
	}
	return emailOK && valid, nil
}

var _ CredentialChecker = (*StaticCredentials)(nil)
