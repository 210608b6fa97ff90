// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package captcha verifies challenge response tokens with an external
// reCAPTCHA-compatible provider.
//
// A provider-level rejection is a normal Outcome with Accepted false.
// Anything that prevents a trustworthy answer (transport errors, timeouts,
// non-2xx responses, malformed bodies) is returned as an error carrying the
// CAPTCHA_UNAVAILABLE code; use IsUnavailable to test for it.
package captcha

import (
	"context"

	"github.com/samber/oops"
)

// CodeUnavailable is the oops code for provider failures.
const CodeUnavailable = "CAPTCHA_UNAVAILABLE"

// ErrorCodeMissingResponse is reported when no token was supplied.
// It matches the code the provider itself uses.
const ErrorCodeMissingResponse = "missing-input-response"

// Outcome is the normalised provider answer.
type Outcome struct {
	Accepted   bool
	ErrorCodes []string
}

// Verifier exchanges a challenge token for an accept/reject decision.
type Verifier interface {
	// Verify checks token with the provider. remoteIP is optional.
	// Returns an error only when the provider could not give an answer.
	Verify(ctx context.Context, token, remoteIP string) (Outcome, error)
}

// IsUnavailable reports whether err means the provider could not be reached
// or gave an unusable answer.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == CodeUnavailable
}

func unavailable() oops.OopsErrorBuilder {
	return oops.Code(CodeUnavailable).In("captcha")
}
