// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/loginguard/loginguard/internal/attempt"
	"github.com/loginguard/loginguard/internal/captcha"
)

// Outcome is the kind of answer a login request receives.
type Outcome string

// Login outcomes, in evaluation order.
const (
	OutcomeLocked                  Outcome = "locked"
	OutcomeChallengeRequired       Outcome = "challenge_required"
	OutcomeVerificationUnavailable Outcome = "verification_unavailable"
	OutcomeChallengeRejected       Outcome = "challenge_rejected"
	OutcomeInvalidCredentials      Outcome = "invalid_credentials"
	OutcomeSuccess                 Outcome = "success"
	OutcomeInternalError           Outcome = "internal_error"
)

// LoginRequest is a single login attempt.
type LoginRequest struct {
	Email          string
	Password       string
	ChallengeToken string
	RemoteIP       string
}

// Result is the structured answer to a login attempt.
type Result struct {
	Outcome Outcome

	// FailedAttempts is the counter value after the request was handled.
	FailedAttempts int

	// ErrorCodes holds provider diagnostics for OutcomeChallengeRejected.
	ErrorCodes []string
}

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	Tracker     *attempt.Tracker
	Verifier    captcha.Verifier
	Credentials CredentialChecker

	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger

	// CountRejectedChallenges makes a rejected challenge token count as a
	// failed attempt. Off by default, so challenge retries never lead to lockout.
	CountRejectedChallenges bool
}

// Service runs the login state machine: gate on the attempt tracker, verify
// any challenge token, check credentials, then update the counter.
type Service struct {
	tracker       *attempt.Tracker
	verifier      captcha.Verifier
	credentials   CredentialChecker
	logger        *slog.Logger
	countRejected bool
}

// NewService validates dependencies and creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Tracker == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("attempt tracker is required")
	}
	if cfg.Verifier == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("captcha verifier is required")
	}
	if cfg.Credentials == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("credential checker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tracker:       cfg.Tracker,
		verifier:      cfg.Verifier,
		credentials:   cfg.Credentials,
		logger:        logger,
		countRejected: cfg.CountRejectedChallenges,
	}, nil
}

// Login evaluates one login attempt.
//
// Policy outcomes are returned as a Result with a nil error. A non-nil error
// is returned only for infrastructure failures (OutcomeVerificationUnavailable
// and OutcomeInternalError); the Result is still populated in that case.
//
// The provider call runs without holding the tracker's lock.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Result, error) {
	result, err := s.login(ctx, req)
	RecordLoginOutcome(result.Outcome)
	return result, err
}

func (s *Service) login(ctx context.Context, req LoginRequest) (Result, error) {
	hasToken := req.ChallengeToken != ""

	decision, failed := s.tracker.Evaluate(hasToken)
	switch decision {
	case attempt.DecisionLocked:
		s.logger.WarnContext(ctx, "login rejected, locked out",
			"failed_attempts", failed,
			"remote_ip", req.RemoteIP,
		)
		return Result{Outcome: OutcomeLocked, FailedAttempts: failed}, nil
	case attempt.DecisionChallengeRequired:
		s.logger.InfoContext(ctx, "login requires challenge",
			"failed_attempts", failed,
			"remote_ip", req.RemoteIP,
		)
		return Result{Outcome: OutcomeChallengeRequired, FailedAttempts: failed}, nil
	case attempt.DecisionProceed:
	}

	if hasToken {
		outcome, err := s.verifier.Verify(ctx, req.ChallengeToken, req.RemoteIP)
		if err != nil {
			if !captcha.IsUnavailable(err) {
				err = oops.Code(captcha.CodeUnavailable).
					In("captcha").
					With("cause", err.Error()).
					Errorf("captcha verification failed")
			}
			return Result{Outcome: OutcomeVerificationUnavailable, FailedAttempts: s.tracker.Failed()}, err
		}
		if !outcome.Accepted {
			return s.challengeRejected(ctx, req, outcome), nil
		}
	}

	valid, err := s.credentials.Check(ctx, req.Email, req.Password)
	if err != nil {
		return Result{Outcome: OutcomeInternalError, FailedAttempts: s.tracker.Failed()},
			oops.Code("AUTH_CHECK_FAILED").With("operation", "check credentials").Wrap(err)
	}

	if !valid {
		failed := s.tracker.RecordFailure()
		s.logger.InfoContext(ctx, "login failed, invalid credentials",
			"failed_attempts", failed,
			"remote_ip", req.RemoteIP,
		)
		return Result{Outcome: OutcomeInvalidCredentials, FailedAttempts: failed}, nil
	}

	s.tracker.RecordSuccess()
	s.logger.InfoContext(ctx, "login succeeded", "remote_ip", req.RemoteIP)
	return Result{Outcome: OutcomeSuccess}, nil
}

func (s *Service) challengeRejected(ctx context.Context, req LoginRequest, outcome captcha.Outcome) Result {
	var failed int
	if s.countRejected {
		failed = s.tracker.RecordFailure()
	} else {
		failed = s.tracker.Failed()
	}

	codes := outcome.ErrorCodes
	if codes == nil {
		codes = []string{}
	}

	s.logger.InfoContext(ctx, "login rejected, challenge failed",
		"failed_attempts", failed,
		"error_codes", codes,
		"counted", s.countRejected,
		"remote_ip", req.RemoteIP,
	)
	return Result{Outcome: OutcomeChallengeRejected, FailedAttempts: failed, ErrorCodes: codes}
}

// Status returns the tracker's current state.
func (s *Service) Status() attempt.Snapshot {
	return s.tracker.Snapshot()
}

// Reset clears the failure counter. source names who asked (e.g. "http", "control").
func (s *Service) Reset(ctx context.Context, source string) {
	previous := s.tracker.Failed()
	s.tracker.Reset()
	s.logger.WarnContext(ctx, "attempt counter reset",
		"source", source,
		"previous_failed_attempts", previous,
	)
}
