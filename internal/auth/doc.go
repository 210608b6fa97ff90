// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package auth implements the login flow for LoginGuard.
//
// # Service
//
// Service is the request orchestration state machine. For every attempt it
//   - asks the attempt.Tracker whether the client is locked out or must
//     present a challenge,
//   - verifies a challenge token with a captcha.Verifier whenever one is
//     supplied, mandatory or not,
//   - checks credentials with a CredentialChecker,
//   - records the failure or success on the tracker.
//
// Create it with NewService, which validates its dependencies.
//
// # Credentials
//
// StaticCredentials checks a single configured credential held as an
// argon2id hash (see Argon2idHasher).
package auth
