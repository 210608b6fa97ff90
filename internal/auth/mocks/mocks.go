// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package mocks provides testify mocks for the login service dependencies.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/loginguard/loginguard/internal/captcha"
)

// MockVerifier is a mock captcha.Verifier.
type MockVerifier struct {
	mock.Mock
}

// NewMockVerifier creates a MockVerifier that asserts its expectations on cleanup.
func NewMockVerifier(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockVerifier {
	m := &MockVerifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Verify records the call and returns the configured values.
func (m *MockVerifier) Verify(ctx context.Context, token, remoteIP string) (captcha.Outcome, error) {
	args := m.Called(ctx, token, remoteIP)
	if fn, ok := args.Get(0).(func(context.Context, string, string) (captcha.Outcome, error)); ok {
		return fn(ctx, token, remoteIP)
	}
	return args.Get(0).(captcha.Outcome), args.Error(1)
}

// MockCredentialChecker is a mock auth.CredentialChecker.
type MockCredentialChecker struct {
	mock.Mock
}

// NewMockCredentialChecker creates a MockCredentialChecker that asserts its
// expectations on cleanup.
func NewMockCredentialChecker(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCredentialChecker {
	m := &MockCredentialChecker{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Check records the call and returns the configured values.
func (m *MockCredentialChecker) Check(ctx context.Context, email, password string) (bool, error) {
	args := m.Called(ctx, email, password)
	return args.Bool(0), args.Error(1)
}
