// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package attempt

import (
	"slices"

	"github.com/samber/oops"
)

// Mode selects how challenge thresholds are matched against the failure count.
type Mode string

const (
	// ModeExact requires a challenge only when the count equals a threshold.
	// A count that skips over a threshold never sees a challenge.
	ModeExact Mode = "exact"

	// ModeAtOrAbove requires a challenge once the count reaches the lowest
	// threshold and keeps requiring it until the count is reset.
	ModeAtOrAbove Mode = "at-or-above"
)

// Default threshold values.
const (
	DefaultLockoutAt = 10
)

// DefaultChallengeAt returns the default challenge thresholds.
func DefaultChallengeAt() []int {
	return []int{4, 7}
}

// Thresholds is the immutable escalation policy.
type Thresholds struct {
	challengeAt []int
	lockoutAt   int
	mode        Mode
}

// NewThresholds validates and normalises a threshold policy.
// Challenge values are sorted and deduplicated. An empty mode means ModeExact.
func NewThresholds(challengeAt []int, lockoutAt int, mode Mode) (Thresholds, error) {
	if lockoutAt <= 0 {
		return Thresholds{}, oops.Code("CONFIG_INVALID").
			With("lockout_at", lockoutAt).
			Errorf("lockout threshold must be positive")
	}

	if mode == "" {
		mode = ModeExact
	}
	if mode != ModeExact && mode != ModeAtOrAbove {
		return Thresholds{}, oops.Code("CONFIG_INVALID").
			With("mode", string(mode)).
			Errorf("unknown challenge mode %q", mode)
	}

	values := slices.Clone(challengeAt)
	slices.Sort(values)
	values = slices.Compact(values)
	for _, v := range values {
		if v <= 0 || v >= lockoutAt {
			return Thresholds{}, oops.Code("CONFIG_INVALID").
				With("challenge_at", v).
				With("lockout_at", lockoutAt).
				Errorf("challenge threshold %d must be between 1 and %d", v, lockoutAt-1)
		}
	}

	return Thresholds{
		challengeAt: values,
		lockoutAt:   lockoutAt,
		mode:        mode,
	}, nil
}

// DefaultThresholds returns the default policy: challenge at 4 and 7, lockout at 10.
func DefaultThresholds() Thresholds {
	t, err := NewThresholds(DefaultChallengeAt(), DefaultLockoutAt, ModeExact)
	if err != nil {
		panic(err)
	}
	return t
}

// ChallengeAt returns a copy of the challenge thresholds in ascending order.
func (t Thresholds) ChallengeAt() []int {
	return slices.Clone(t.challengeAt)
}

// LockoutAt returns the lockout threshold.
func (t Thresholds) LockoutAt() int {
	return t.lockoutAt
}

// Mode returns the challenge match mode.
func (t Thresholds) Mode() Mode {
	return t.mode
}

// Locked reports whether count has reached the lockout threshold.
func (t Thresholds) Locked(count int) bool {
	return count >= t.lockoutAt
}

// ChallengeRequired reports whether a challenge is mandatory at count.
func (t Thresholds) ChallengeRequired(count int) bool {
	if len(t.challengeAt) == 0 {
		return false
	}
	if t.mode == ModeAtOrAbove {
		return count >= t.challengeAt[0]
	}
	_, found := slices.BinarySearch(t.challengeAt, count)
	return found
}
