// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, Code(err))
}

// AssertErrorContext asserts that err carries key=value in its oops context.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, value, oopsErr.Context()[key])
}
