// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package attempt tracks consecutive failed login attempts and decides,
// per request, whether to reject, demand a challenge, or proceed.
//
// A Tracker is owned by the service that uses it; there is no package-level
// state. All reads and writes of the counter are serialised through one
// mutex, and no method performs I/O while holding it.
package attempt

import (
	"sync"
)

// Decision is the gating result for a single login request.
type Decision int

const (
	// DecisionProceed lets the request continue to challenge verification
	// (when a token is present) and the credential check.
	DecisionProceed Decision = iota

	// DecisionChallengeRequired rejects the request because a challenge is
	// mandatory at the current count and none was supplied.
	DecisionChallengeRequired

	// DecisionLocked rejects the request because the lockout threshold has
	// been reached.
	DecisionLocked
)

// String returns the decision name used in logs and metrics.
func (d Decision) String() string {
	switch d {
	case DecisionProceed:
		return "proceed"
	case DecisionChallengeRequired:
		return "challenge_required"
	case DecisionLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of the tracker.
type Snapshot struct {
	FailedAttempts int   `json:"failedAttempts"`
	ChallengeAt    []int `json:"challengeAt"`
	LockoutAt      int   `json:"lockoutAt"`
	ChallengeMode  Mode  `json:"challengeMode"`
}

// Observer is notified with the new count after every mutation.
type Observer func(failed int)

// Tracker owns the failed-attempt counter. It is safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	failed     int
	thresholds Thresholds
	observe    Observer
}

// NewTracker creates a tracker starting at zero failures.
func NewTracker(thresholds Thresholds) *Tracker {
	return &Tracker{thresholds: thresholds}
}

// NewTrackerWithObserver creates a tracker that reports every count change
// to observe. The observer runs inside the critical section and must not block.
func NewTrackerWithObserver(thresholds Thresholds, observe Observer) *Tracker {
	return &Tracker{thresholds: thresholds, observe: observe}
}

// Thresholds returns the tracker's policy.
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

// Evaluate gates a request against the current count and returns the
// decision together with the count it was made on.
// Lockout is checked before the challenge requirement so a locked-out client
// never receives a challenge response. The counter is not modified.
func (t *Tracker) Evaluate(hasToken bool) (Decision, int) {
	t.mu.Lock()
	failed := t.failed
	t.mu.Unlock()

	if t.thresholds.Locked(failed) {
		return DecisionLocked, failed
	}
	if !hasToken && t.thresholds.ChallengeRequired(failed) {
		return DecisionChallengeRequired, failed
	}
	return DecisionProceed, failed
}

// RecordFailure increments the counter and returns the new value.
// There is no cap; lockout is a read-time check.
func (t *Tracker) RecordFailure() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
	t.notify()
	return t.failed
}

// RecordSuccess clears the counter after a successful login.
func (t *Tracker) RecordSuccess() {
	t.set(0)
}

// Reset clears the counter. It is an administrative operation.
func (t *Tracker) Reset() {
	t.set(0)
}

// Failed returns the current count.
func (t *Tracker) Failed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Snapshot returns the current count together with the policy.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		FailedAttempts: t.Failed(),
		ChallengeAt:    t.thresholds.ChallengeAt(),
		LockoutAt:      t.thresholds.LockoutAt(),
		ChallengeMode:  t.thresholds.Mode(),
	}
}

func (t *Tracker) set(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = n
	t.notify()
}

// notify must be called with mu held.
func (t *Tracker) notify() {
	if t.observe != nil {
		t.observe(t.failed)
	}
}
